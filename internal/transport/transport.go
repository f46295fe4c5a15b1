// Package transport executes single HTTP delivery attempts. It never
// retries; retry policy belongs to the engine.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hooklinehq/hookline/internal/signature"
	"github.com/hooklinehq/hookline/internal/tracing"
)

// Standard identification headers injected on every outbound request.
const (
	HeaderWebhookID        = "X-Webhook-ID"
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"

	// DefaultSignatureHeader carries the request signature when signing is
	// enabled. Configurable via Config.SignatureHeader.
	DefaultSignatureHeader = "X-Webhook-Signature"
)

// DefaultTimeout bounds a single attempt end to end.
const DefaultTimeout = 30 * time.Second

const maxResponseBody = 4 << 10 // keep at most 4 KiB of response body per attempt

// Request describes one outbound delivery attempt.
type Request struct {
	DeliveryID string
	EventType  string
	URL        string
	Method     string
	Headers    map[string]string
	Body       []byte
}

// Result is the outcome of an attempt that produced an HTTP response.
// Responses with status >= 500 are still returned as Results, not errors,
// so the engine can classify them.
type Result struct {
	StatusCode int
	Body       string
	Latency    time.Duration
}

// Error is a request-level fault: the attempt produced no HTTP response.
type Error struct {
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("attempt timed out: %v", e.Err)
	}
	return fmt.Sprintf("attempt failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds transport settings.
type Config struct {
	Timeout         time.Duration
	SignatureHeader string
	Signer          *signature.Signer // nil disables signing
}

// Transport performs HTTP delivery attempts.
type Transport struct {
	client *http.Client
	cfg    Config
	now    func() time.Time
}

// New creates a Transport. A zero Timeout falls back to DefaultTimeout and an
// empty SignatureHeader to DefaultSignatureHeader.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	return &Transport{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		now:    time.Now,
	}
}

// Do executes one attempt. The returned error, when non-nil, is always a
// *Error distinguishing timeouts from other network-level faults.
func (t *Transport) Do(ctx context.Context, req Request) (Result, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{}, &Error{Err: fmt.Errorf("building request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set(HeaderWebhookID, req.DeliveryID)
	httpReq.Header.Set(HeaderWebhookEvent, req.EventType)
	httpReq.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(t.now().Unix(), 10))
	if t.cfg.Signer != nil {
		httpReq.Header.Set(t.cfg.SignatureHeader, t.cfg.Signer.Sign(req.Body))
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		httpReq.Header.Set("X-Trace-Id", traceID)
	}

	start := t.now()
	resp, doErr := t.client.Do(httpReq)
	latency := t.now().Sub(start)
	if doErr != nil {
		return Result{Latency: latency}, classify(doErr)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Latency:    latency,
	}, nil
}

// classify maps a client error to a *Error, flagging timeouts.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Timeout: true, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Timeout: true, Err: err}
	}
	return &Error{Err: err}
}
