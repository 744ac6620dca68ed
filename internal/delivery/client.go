// Package delivery sends accepted submissions to an external relay endpoint.
//
// One attempt per call, bounded by a hard timeout; the retry policy between
// SMTP configurations belongs to the mailer collaborator, not to this client.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solatis/stagedoor/internal/types"
	"go.uber.org/zap"
)

// DefaultTimeout is the reference hard timeout per send attempt.
const DefaultTimeout = 8 * time.Second

// maxResponseBytes caps how much of a relay response is read when looking for
// a message identifier. Relay bodies are small JSON; anything larger is noise.
const maxResponseBytes = 64 * 1024

// ErrorKind classifies delivery failures.
type ErrorKind int

const (
	// KindTimeout means the attempt exceeded its deadline; the underlying
	// connection is released by context cancellation.
	KindTimeout ErrorKind = iota + 1

	// KindRejected means the endpoint answered with a non-2xx status.
	KindRejected

	// KindNetwork means a transport-level failure (DNS, connection refused)
	// before any HTTP status was received. Status is 0.
	KindNetwork
)

// String returns the kind name for logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is a classified delivery failure.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status for KindRejected, 0 otherwise
	cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("delivery rejected: status %d", e.Status)
	case KindTimeout:
		return fmt.Sprintf("delivery timed out: %v", e.cause)
	default:
		return fmt.Sprintf("delivery failed: %v", e.cause)
	}
}

// Unwrap exposes the transport error for errors.Is chains.
func (e *Error) Unwrap() error { return e.cause }

// Encoder renders a delivery request into an HTTP request body. Two wire
// contracts exist: JSON toward the stagedoor relay endpoint and form-encoded
// toward forms-as-a-service providers.
type Encoder interface {
	Encode(req types.DeliveryRequest) (body io.Reader, contentType string, err error)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the hard per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithEncoder selects the payload encoding. Default is JSONEncoder.
func WithEncoder(enc Encoder) Option {
	return func(c *Client) { c.enc = enc }
}

// WithLogger attaches a logger for attempt diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client issues single delivery attempts against a relay endpoint.
type Client struct {
	endpoint string
	httpc    *http.Client
	timeout  time.Duration
	enc      Encoder
	log      *zap.Logger
}

// NewClient creates a delivery client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpc:    http.DefaultClient,
		timeout:  DefaultTimeout,
		enc:      JSONEncoder{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// relayResponse is the JSON body of the stagedoor relay endpoint. Other
// providers answer arbitrary bodies; decoding is best-effort.
type relayResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Send performs exactly one delivery attempt. The context deadline is the
// configured timeout or the caller's, whichever is sooner; on expiry the
// request is cancelled and the connection released.
func (c *Client) Send(ctx context.Context, req types.DeliveryRequest) (types.DeliveryReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := c.enc.Encode(req)
	if err != nil {
		return types.DeliveryReceipt{}, fmt.Errorf("failed to encode delivery request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return types.DeliveryReceipt{}, fmt.Errorf("failed to build delivery request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		c.log.Warn("delivery attempt failed",
			zap.String("submission_id", string(req.ID)),
			zap.String("kind", kind.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return types.DeliveryReceipt{}, &Error{Kind: kind, cause: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("delivery rejected by endpoint",
			zap.String("submission_id", string(req.ID)),
			zap.Int("status", resp.StatusCode))
		return types.DeliveryReceipt{}, &Error{Kind: KindRejected, Status: resp.StatusCode}
	}

	receipt := types.DeliveryReceipt{Status: resp.StatusCode}
	var parsed relayResponse
	if json.Unmarshal(raw, &parsed) == nil {
		receipt.MessageID = parsed.MessageID
	}

	c.log.Debug("delivery accepted",
		zap.String("submission_id", string(req.ID)),
		zap.Int("status", resp.StatusCode),
		zap.String("message_id", receipt.MessageID))
	return receipt, nil
}
