package http

import (
	"strings"
	"time"
)

// Response is the captured result of one call to the system under test.
// Everything the evaluator and the write-back need is materialized here;
// the underlying connection is already closed by the time callers see it.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// Header performs a case-insensitive lookup.
func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
