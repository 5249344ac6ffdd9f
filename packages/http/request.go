package http

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/larktools/bitrunner/packages/testcase"
)

// Request is a fully resolved call against the system under test.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// DefaultUserAgent identifies the runner to the system under test when
// neither the config nor the case sets one.
const DefaultUserAgent = "bitrunner"

// Builder turns test cases into concrete requests. It holds the run-wide
// pieces (base URL, default headers) so Build itself stays pure.
type Builder struct {
	BaseURL        string
	DefaultHeaders map[string]string
}

func NewBuilder(baseURL string, defaultHeaders map[string]string) *Builder {
	return &Builder{
		BaseURL:        baseURL,
		DefaultHeaders: defaultHeaders,
	}
}

// Build resolves the case's path against the base URL and merges headers.
// Explicit case headers win over defaults; Content-Type is inferred from
// body presence when the author did not set one.
func (b *Builder) Build(tc *testcase.TestCase) (*Request, error) {
	resolved, err := b.resolveURL(tc.Path)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(b.DefaultHeaders)+len(tc.Headers)+1)
	for k, v := range b.DefaultHeaders {
		headers[k] = v
	}
	if tc.Body != "" && lookupHeader(headers, "Content-Type") == "" {
		headers["Content-Type"] = "application/json"
	}
	if lookupHeader(headers, "User-Agent") == "" {
		headers["User-Agent"] = DefaultUserAgent
	}
	for k, v := range tc.Headers {
		setHeader(headers, k, v)
	}

	return &Request{
		Method:  string(tc.Method),
		URL:     resolved,
		Headers: headers,
		Body:    tc.Body,
	}, nil
}

func (b *Builder) resolveURL(path string) (string, error) {
	// Absolute URLs in the path column bypass the base URL.
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if b.BaseURL == "" {
		return "", fmt.Errorf("no base URL configured for relative path %q", path)
	}

	base, err := url.Parse(strings.TrimRight(b.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", b.BaseURL, err)
	}
	return base.String() + "/" + strings.TrimLeft(path, "/"), nil
}

func lookupHeader(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// setHeader replaces any existing entry regardless of case so a case's
// "content-type" overrides a default "Content-Type".
func setHeader(headers map[string]string, key, value string) {
	for k := range headers {
		if strings.EqualFold(k, key) {
			delete(headers, k)
		}
	}
	headers[key] = value
}
