package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultDomain is the Lark Base open platform endpoint.
	DefaultDomain = "https://base-api.feishu.cn"
	// DefaultTimeout is the per-call HTTP timeout against the table backend.
	DefaultTimeout = 30 * time.Second
	// DefaultRatePerSec is a conservative ceiling; the documented Bitable
	// limit is higher but shared across callers of the same app token.
	DefaultRatePerSec = 5.0
	// DefaultBurst allows short spikes without tripping the limiter.
	DefaultBurst = 5
	// DefaultMaxRetries caps backoff attempts for rate-limit and 5xx responses.
	DefaultMaxRetries = 3

	// MaxPageSize is the largest page the records API accepts.
	MaxPageSize = 200

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// Config carries everything the client needs. Credentials are explicit
// here rather than ambient so independent runs against different bases
// can coexist in one process.
type Config struct {
	Domain        string
	AppToken      string
	PersonalToken string
	RatePerSec    float64
	Burst         int
	MaxRetries    int
	Timeout       time.Duration
}

func (c *Config) applyDefaults() {
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client is an authenticated, rate-limited Bitable API client.
// It is safe for concurrent use; the token bucket is the only shared
// mutable state and rate.Limiter synchronizes it internally.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// Record is one table row: backend-assigned id plus loosely typed fields.
type Record struct {
	ID     string         `json:"record_id"`
	Fields map[string]any `json:"fields"`
}

// RecordUpdate targets a single row for (batch) update.
type RecordUpdate struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

// RecordPage is one page of a cursor-paginated listing.
type RecordPage struct {
	Records       []Record
	NextPageToken string
	HasMore       bool
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewClient validates the credential format and builds a client.
func NewClient(cfg Config, log *logrus.Logger) (*Client, error) {
	cfg.PersonalToken = strings.TrimSpace(cfg.PersonalToken)
	cfg.AppToken = strings.TrimSpace(cfg.AppToken)

	if !strings.HasPrefix(cfg.PersonalToken, "pt-") {
		return nil, fmt.Errorf("bitable: personal token must start with %q", "pt-")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("bitable: app token is required")
	}
	cfg.applyDefaults()

	if log == nil {
		log = logrus.New()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.WithField("component", "bitable"),
	}, nil
}

// ListRecords fetches a single page of rows. Pass the previous page's
// NextPageToken to continue; an empty token starts from the beginning.
// Callers loop until HasMore is false.
func (c *Client) ListRecords(ctx context.Context, tableID, pageToken string, pageSize int) (*RecordPage, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{}
	query.Set("page_size", fmt.Sprintf("%d", pageSize))
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}

	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/records", c.cfg.AppToken, tableID)
	data, err := c.call(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items     []Record `json:"items"`
		PageToken string   `json:"page_token"`
		HasMore   bool     `json:"has_more"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("bitable: decoding records page: %w", err)
	}

	return &RecordPage{
		Records:       payload.Items,
		NextPageToken: payload.PageToken,
		HasMore:       payload.HasMore && payload.PageToken != "",
	}, nil
}

// AllRecords loops ListRecords until the cursor is exhausted.
func (c *Client) AllRecords(ctx context.Context, tableID string) ([]Record, error) {
	var all []Record
	token := ""
	for {
		page, err := c.ListRecords(ctx, tableID, token, MaxPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if !page.HasMore {
			break
		}
		token = page.NextPageToken
	}
	c.log.WithField("count", len(all)).Debug("fetched all records")
	return all, nil
}

// UpdateRecord overwrites the given fields of one row. Repeating the
// same update is harmless: the backend replaces values, it does not
// accumulate them.
func (c *Client) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) error {
	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/records/%s", c.cfg.AppToken, tableID, recordID)
	body := map[string]any{"fields": fields}
	_, err := c.call(ctx, http.MethodPut, endpoint, nil, body)
	return err
}

// BatchUpdateRecords updates several rows in one backend call.
func (c *Client) BatchUpdateRecords(ctx context.Context, tableID string, updates []RecordUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_update", c.cfg.AppToken, tableID)
	body := map[string]any{"records": updates}
	_, err := c.call(ctx, http.MethodPost, endpoint, nil, body)
	return err
}

// call issues one API request with rate limiting and backoff. Rate-limit
// responses and 5xx failures are retried with exponential backoff plus
// jitter; auth failures and other 4xx responses are returned immediately.
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bitable: encoding request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			c.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("retrying table backend call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.doOnce(ctx, method, endpoint, query, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("bitable: retries exhausted: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, query url.Values, payload []byte) (json.RawMessage, error) {
	u := strings.TrimRight(c.cfg.Domain, "/") + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.PersonalToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classify(resp.StatusCode, -1, truncateForLog(string(raw)))
		}
		return nil, fmt.Errorf("bitable: decoding response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		return nil, classify(resp.StatusCode, env.Code, env.Msg)
	}

	return env.Data, nil
}

// retryable mirrors the propagation policy: rate limits and transient
// server errors get another chance, auth and validation failures do not.
func retryable(err error) bool {
	if IsRateLimitError(err) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		// StatusCode 0 means the transport failed before a response arrived.
		return ae.StatusCode == 0 || ae.Retryable()
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << (attempt - 1)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	// Full jitter keeps concurrent workers from retrying in lockstep.
	return time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
}

func truncateForLog(s string) string {
	const max = 256
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
