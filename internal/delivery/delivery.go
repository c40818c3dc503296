// Package delivery posts signed webhook payloads to a destination.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/styxit/spoof/internal/logging"
	"github.com/styxit/spoof/internal/signature"
)

// Header names set on every delivery.
const (
	HeaderEvent    = "X-GitHub-Event"
	HeaderDelivery = "X-GitHub-Delivery"

	UserAgent = "GitHub-Hookshot/spoof"

	// DefaultTimeout applies when the client is built with a zero timeout.
	DefaultTimeout = 10 * time.Second

	maxResponseBody = 1 << 20
)

// ErrDestinationRequired is returned when a request has no URL.
var ErrDestinationRequired = errors.New("destination url is required")

// Request describes one outbound webhook delivery.
type Request struct {
	URL          string
	Event        string
	DeliveryID   string
	Payload      []byte
	Signature    string // hex HMAC-SHA1
	Signature256 string // hex HMAC-SHA256, optional
}

// Headers returns the HTTP headers sent with the request.
func (r Request) Headers() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", UserAgent)
	h.Set(signature.HeaderSHA1, signature.Header(r.Signature))
	if r.Signature256 != "" {
		h.Set(signature.HeaderSHA256, signature.Header256(r.Signature256))
	}
	if r.Event != "" {
		h.Set(HeaderEvent, r.Event)
	}
	if r.DeliveryID != "" {
		h.Set(HeaderDelivery, r.DeliveryID)
	}
	return h
}

// Response captures the destination's answer.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the destination answered with a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer executes HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client delivers webhook requests. Deliveries are attempted once.
type Client struct {
	http   Doer
	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger overrides the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client with the given request timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logging.Component("delivery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver posts the payload. Non-2xx answers are returned as a Response, not an error.
func (c *Client) Deliver(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, ErrDestinationRequired
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = req.Headers()
	httpReq.ContentLength = int64(len(req.Payload))

	c.logger.Debug().
		Str("url", req.URL).
		Str("event", req.Event).
		Str("delivery_id", req.DeliveryID).
		Int("bytes", len(req.Payload)).
		Msg("delivering webhook")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
		Duration:   time.Since(started),
	}

	event := c.logger.Debug()
	if !result.OK() {
		event = c.logger.Warn()
	}
	event.
		Int("status", result.StatusCode).
		Dur("duration", result.Duration).
		Str("delivery_id", req.DeliveryID).
		Msg("webhook delivered")

	return result, nil
}
