// Package transport is the outbound HTTP layer shared by the provider
// clients. It applies a per-host rate limit, a request timeout, and an
// optional bounded retry with jittered exponential backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64
	Burst     int
	// MaxRetries is the number of extra attempts after the first. Zero means
	// a single attempt.
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	Headers    map[string]string
	// MaxBodyBytes caps a response body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes fits a full 1000-result financials page.
const DefaultMaxBodyBytes = 64 << 20

// Client issues JSON requests against a single upstream.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
}

// New creates a Client. A nil limiter is used when opts.RateLimit is zero.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 250 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 5 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}
	return c
}

// Get sends a GET request and returns the response body of a 2xx reply.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// PostJSON marshals body and POSTs it.
func (c *Client) PostJSON(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, payload)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	if c.opts.MaxRetries <= 0 {
		return c.once(ctx, method, url, payload)
	}

	var body []byte
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var err error
		body, err = c.once(ctx, method, url, payload)
		if err != nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", domain.ErrMalformed, c.opts.MaxBodyBytes)
	}

	if err := CheckHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// backoff is exponential from RetryBase, capped at RetryMax, with 20%
// jitter, stopping after MaxRetries extra attempts.
func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.opts.RetryBase)
	b = retry.WithCappedDuration(c.opts.RetryMax, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(c.opts.MaxRetries), b)
}

// Retryable reports whether err is a transient upstream failure.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrRateLimited)
}

// CheckHTTPStatus maps non-2xx status codes to appropriate domain errors.
func CheckHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
