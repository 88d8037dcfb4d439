package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soundjacket/metapub/internal/retry"
	"golang.org/x/time/rate"
)

// Config configures a Client
type Config struct {
	// Timeout for a single request attempt (default: 60s)
	Timeout time.Duration

	// RateLimit in requests per second (default: 5)
	RateLimit float64

	// RateBurst maximum burst size (default: 5)
	RateBurst int

	// Retry bounds attempts on network errors, 408, 429 and 5xx
	Retry retry.Policy

	// Headers added to every request
	Headers map[string]string

	// Transport allows injecting a custom transport in tests
	Transport http.RoundTripper
}

// Client is a rate-limited, retrying HTTP client for the remote services the
// pipeline talks to.
type Client struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// New creates a client, filling zero values with defaults
func New(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
}

// Request is a single HTTP call. Body is kept as bytes so it can be resent.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into target
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Do executes the request with rate limiting and retries
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, c.config.Retry, req.Method+" "+req.URL, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		r, err := c.doOnce(ctx, req)
		if err != nil {
			if !isRetryable(ctx, err) {
				return retry.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}, nil
}

// GetJSON fetches url and decodes the JSON body into target
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	resp, err := c.Do(ctx, &Request{
		Method:  http.MethodGet,
		URL:     url,
		Headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return err
	}
	if err := resp.JSON(target); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// PostJSON sends body as JSON and decodes the JSON response into target.
// A nil target skips decoding.
func (c *Client) PostJSON(ctx context.Context, url string, body any, headers map[string]string, target any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range headers {
		h[k] = v
	}

	resp, err := c.Do(ctx, &Request{
		Method:  http.MethodPost,
		URL:     url,
		Headers: h,
		Body:    data,
	})
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := resp.JSON(target); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// HTTPError is a non-2xx response
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return fmt.Sprintf("received non-2xx status code: %d - %s", e.StatusCode, msg)
}

// IsRateLimited returns true for 429
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for 5xx
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRateLimited() || httpErr.IsServerError() || httpErr.StatusCode == http.StatusRequestTimeout
	}
	// transport level failures (connection refused, timeouts, resets)
	return true
}
