package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hooklinehq/hookline/internal/breaker"
	"github.com/hooklinehq/hookline/internal/logging"
	"github.com/hooklinehq/hookline/internal/metrics"
	"github.com/hooklinehq/hookline/internal/signature"
	"github.com/hooklinehq/hookline/internal/tracing"
	"github.com/hooklinehq/hookline/internal/transport"
)

// ErrInvalidPayload is returned by Submit for malformed payloads. This is
// the only error surfaced synchronously; downstream delivery failures are
// recorded on the attempt history instead.
var ErrInvalidPayload = errors.New("invalid payload")

// DLQ reasons attached to terminally failed deliveries.
const (
	ReasonMaxRetries   = "max retries exceeded"
	ReasonDLQThreshold = "DLQ threshold reached"
	ReasonNonRetryable = "non-retryable error"
)

// Config holds the engine policy knobs.
//
// MaxAttempts and DLQAfterAttempts overlap deliberately: DLQAfterAttempts
// bounds retryable failures while MaxAttempts is the hard ceiling checked
// before any transport call. Both are kept as separate knobs.
type Config struct {
	MaxAttempts       int
	DLQAfterAttempts  int
	Backoff           BackoffConfig
	RetryableStatuses []int
	AttemptTimeout    time.Duration
	BatchSize         int
	DLQTTL            time.Duration
	DLQRetryLimit     int
	SigningSecret     string
	SignatureHeader   string
	Breaker           breaker.Config
}

// DefaultConfig returns the standard engine policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		DLQAfterAttempts:  3,
		Backoff:           DefaultBackoff(),
		RetryableStatuses: []int{429, 500, 502, 503, 504},
		AttemptTimeout:    transport.DefaultTimeout,
		BatchSize:         10,
		DLQTTL:            30 * 24 * time.Hour,
		DLQRetryLimit:     3,
		SignatureHeader:   transport.DefaultSignatureHeader,
		Breaker:           breaker.DefaultConfig(),
	}
}

// Engine dispatches deliveries: first attempt synchronously on submission,
// retries through the scheduler, terminal failures into the DLQ.
type Engine struct {
	cfg        Config
	tr         *transport.Transport
	breakers   *breaker.Registry
	sched      *Scheduler
	deliveries DeliveryStore
	dlqStore   DeadLetterStore
	sinks      []Sink
	log        *logging.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink registers a lifecycle event sink.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithClock overrides the engine time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine backed by the given stores.
func New(cfg Config, deliveries DeliveryStore, dlq DeadLetterStore, opts ...Option) *Engine {
	var signer *signature.Signer
	if cfg.SigningSecret != "" {
		signer = signature.New(cfg.SigningSecret)
	}
	e := &Engine{
		cfg: cfg,
		tr: transport.New(transport.Config{
			Timeout:         cfg.AttemptTimeout,
			SignatureHeader: cfg.SignatureHeader,
			Signer:          signer,
		}),
		breakers:   breaker.NewRegistry(cfg.Breaker),
		sched:      NewScheduler(),
		deliveries: deliveries,
		dlqStore:   dlq,
		log:        logging.New("hookline-engine"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit creates a delivery for the payload and executes the first attempt
// synchronously. It never returns an error for a downstream failure; callers
// observe the outcome through the returned delivery, GetDelivery, or events.
func (e *Engine) Submit(ctx context.Context, p Payload) (*Delivery, error) {
	if err := e.normalize(&p); err != nil {
		return nil, err
	}

	d := &Delivery{
		ID:        uuid.NewString(),
		Payload:   p,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}
	if err := e.deliveries.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("storing delivery: %w", err)
	}

	e.attempt(ctx, d, 1)
	return d, nil
}

// SubmitBulk submits payloads in batches of Config.BatchSize to bound
// concurrent in-flight transport calls. The returned slice is aligned with
// the input; slots for invalid payloads are nil and their errors joined.
func (e *Engine) SubmitBulk(ctx context.Context, payloads []Payload) ([]*Delivery, error) {
	out := make([]*Delivery, len(payloads))
	errs := make([]error, len(payloads))

	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	for start := 0; start < len(payloads); start += batch {
		end := min(start+batch, len(payloads))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i], errs[i] = e.Submit(ctx, payloads[i])
			}(i)
		}
		wg.Wait()
	}
	return out, errors.Join(errs...)
}

// GetDelivery returns the delivery with the given id, or ErrNotFound.
func (e *Engine) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	return e.deliveries.Get(ctx, id)
}

// ProcessDue re-executes every scheduled redelivery that has come due and
// returns how many were processed.
func (e *Engine) ProcessDue(ctx context.Context) int {
	ids := e.sched.Due(e.now())
	for _, id := range ids {
		d, err := e.deliveries.Get(ctx, id)
		if err != nil {
			e.log.Plain().WithDelivery(id).WithError(err).Error("load scheduled delivery failed")
			continue
		}
		if d.Status == StatusDelivered || d.Status == StatusDLQ {
			continue
		}
		e.attempt(ctx, d, len(d.Attempts)+1)
	}
	metrics.UpdateRetryQueueDepth(float64(e.sched.Len()))
	return len(ids)
}

// normalize validates the payload and fills defaulted fields.
func (e *Engine) normalize(p *Payload) error {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	if p.EventType == "" {
		return fmt.Errorf("%w: event_type is required", ErrInvalidPayload)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.EventID == "" {
		p.EventID = uuid.NewString()
	}
	if p.Method == "" {
		p.Method = "POST"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.now()
	}
	return nil
}

// statusError marks responses that count as breaker failures (5xx and the
// configured retryable statuses).
type statusError struct{ code int }

func (s *statusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", s.code)
}

// attempt drives a single attempt through the host breaker and transport,
// then routes the outcome: delivered, retry scheduled, or DLQ.
func (e *Engine) attempt(ctx context.Context, d *Delivery, n int) {
	if n > e.cfg.MaxAttempts {
		e.moveToDLQ(ctx, d, ReasonMaxRetries, "max_attempts")
		return
	}

	host := hostOf(d.Payload.URL)
	ctx, span := tracing.StartSpan(ctx, "engine.attempt",
		attribute.String("delivery_id", d.ID),
		attribute.String("org_id", d.Payload.OrgID),
		attribute.String("event_type", d.Payload.EventType),
		attribute.String("host", host),
		attribute.Int("attempt", n),
	)
	defer span.End()

	body, err := json.Marshal(d.Payload.Body)
	if err != nil {
		body = []byte("{}")
	}
	req := transport.Request{
		DeliveryID: d.ID,
		EventType:  d.Payload.EventType,
		URL:        d.Payload.URL,
		Method:     d.Payload.Method,
		Headers:    d.Payload.Headers,
		Body:       body,
	}

	att := Attempt{
		ID:        uuid.NewString(),
		PayloadID: d.Payload.ID,
		Number:    n,
		At:        e.now(),
	}

	var res transport.Result
	tracing.AddSpanEvent(ctx, "transport.send")
	execErr := e.breakers.Execute(host, func() error {
		r, doErr := e.tr.Do(ctx, req)
		res = r
		if doErr != nil {
			return doErr
		}
		if r.StatusCode >= 500 || e.retryableStatus(r.StatusCode) {
			return &statusError{code: r.StatusCode}
		}
		return nil
	})

	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int64("http.latency_ms", res.Latency.Milliseconds()),
	)

	var (
		retryable bool
		reason    string
		tErr      *transport.Error
		sErr      *statusError
	)
	switch {
	case execErr == nil && res.StatusCode >= 200 && res.StatusCode < 300:
		att.Status = AttemptSuccess
		att.HTTPStatus = res.StatusCode
		att.Response = res.Body
		att.LatencyMS = res.Latency.Milliseconds()
		e.markDelivered(ctx, d, att, res.Latency)
		return

	case errors.Is(execErr, breaker.ErrOpen):
		// Synthetic failure at zero transport cost; retryable like any
		// transport fault.
		att.Status = AttemptFailed
		att.Error = fmt.Sprintf("circuit breaker open for host %s", host)
		retryable = true
		reason = "circuit_open"

	case errors.As(execErr, &tErr):
		if tErr.Timeout {
			att.Status = AttemptTimeout
			reason = "timeout"
		} else {
			att.Status = AttemptFailed
			reason = networkReason(tErr.Err)
		}
		att.Error = tErr.Error()
		att.LatencyMS = res.Latency.Milliseconds()
		retryable = true

	case errors.As(execErr, &sErr):
		att.Status = AttemptFailed
		att.HTTPStatus = res.StatusCode
		att.Response = res.Body
		att.Error = sErr.Error()
		att.LatencyMS = res.Latency.Milliseconds()
		retryable = true
		if res.StatusCode == 429 {
			reason = "http_429"
		} else {
			reason = "http_5xx"
		}

	default:
		// A response outside 2xx that is neither 5xx nor in the retryable
		// set: client fault, terminal.
		att.Status = AttemptFailed
		att.HTTPStatus = res.StatusCode
		att.Response = res.Body
		att.Error = fmt.Sprintf("endpoint returned status %d", res.StatusCode)
		att.LatencyMS = res.Latency.Milliseconds()
		reason = "http_4xx"
	}

	tracing.SetSpanError(ctx, execErr)
	span.SetAttributes(attribute.String("failure_reason", reason))
	metrics.RecordAttempt(string(att.Status), res.Latency)

	if retryable && n < e.cfg.DLQAfterAttempts {
		e.scheduleRetry(ctx, d, att, n, reason)
		return
	}

	d.Attempts = append(d.Attempts, att)
	dlqReason := ReasonNonRetryable
	if retryable {
		dlqReason = ReasonDLQThreshold
	}
	e.moveToDLQ(ctx, d, dlqReason, reason)
}

// markDelivered records a successful attempt and finalizes the delivery.
func (e *Engine) markDelivered(ctx context.Context, d *Delivery, att Attempt, latency time.Duration) {
	d.Attempts = append(d.Attempts, att)
	t := e.now()
	d.Status = StatusDelivered
	d.DeliveredAt = &t

	if err := e.deliveries.Put(ctx, d); err != nil {
		e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("store delivered state failed")
	}

	metrics.RecordAttempt("success", latency)
	metrics.RecordDelivery(string(StatusDelivered), d.Payload.OrgID)
	tracing.AddSpanEvent(ctx, "delivery.success")
	e.log.WithContext(ctx).WithDelivery(d.ID).WithOrg(d.Payload.OrgID).
		WithField("attempt", att.Number).
		WithField("latency_ms", att.LatencyMS).
		Info("delivered")

	e.emit(Event{
		Kind:         EventDelivered,
		DeliveryID:   d.ID,
		OrgID:        d.Payload.OrgID,
		EventType:    d.Payload.EventType,
		Attempt:      att.Number,
		At:           t,
		TraceHeaders: tracing.InjectHeaders(ctx),
	})
}

// scheduleRetry stamps the next retry time on the attempt and enqueues the
// redelivery.
func (e *Engine) scheduleRetry(ctx context.Context, d *Delivery, att Attempt, n int, reason string) {
	delay := e.cfg.Backoff.Delay(n)
	next := e.now().Add(delay)
	att.NextRetryAt = &next
	d.Attempts = append(d.Attempts, att)

	t := e.now()
	d.Status = StatusFailed
	d.FailedAt = &t
	if err := e.deliveries.Put(ctx, d); err != nil {
		e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("store retry state failed")
	}

	e.sched.Schedule(d.ID, next)
	metrics.RecordRetry(reason)
	metrics.UpdateRetryQueueDepth(float64(e.sched.Len()))
	tracing.AddSpanEvent(ctx, "delivery.retry_scheduled", attribute.String("delay", delay.String()))
	e.log.WithContext(ctx).WithDelivery(d.ID).WithOrg(d.Payload.OrgID).WithFields(map[string]any{
		"attempt": n,
		"reason":  reason,
		"delay":   delay.String(),
	}).Info("retry scheduled")

	e.emit(Event{
		Kind:         EventRetryScheduled,
		DeliveryID:   d.ID,
		OrgID:        d.Payload.OrgID,
		EventType:    d.Payload.EventType,
		Attempt:      n,
		NextRetryAt:  &next,
		Reason:       reason,
		At:           t,
		TraceHeaders: tracing.InjectHeaders(ctx),
	})
}

// moveToDLQ finalizes the delivery as terminally failed and files a
// dead-letter entry.
func (e *Engine) moveToDLQ(ctx context.Context, d *Delivery, reason, metricReason string) {
	t := e.now()
	d.Status = StatusDLQ
	d.DLQAt = &t
	d.DLQReason = reason
	if len(d.Attempts) > 0 {
		d.Attempts[len(d.Attempts)-1].Status = AttemptDLQ
	}

	entry := &DeadLetterEntry{
		ID:           uuid.NewString(),
		DeliveryID:   d.ID,
		Payload:      d.Payload,
		Attempts:     append([]Attempt(nil), d.Attempts...),
		Reason:       reason,
		ErrorSummary: summarizeErrors(d.Attempts),
		At:           t,
		ExpiresAt:    t.Add(e.cfg.DLQTTL),
		CanRetry:     true,
	}

	if err := e.dlqStore.Put(ctx, entry); err != nil {
		e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dlq insert failed")
	}
	if err := e.deliveries.Put(ctx, d); err != nil {
		e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("store dlq state failed")
	}

	metrics.RecordDelivery(string(StatusDLQ), d.Payload.OrgID)
	metrics.RecordDLQ(metricReason)
	tracing.AddSpanEvent(ctx, "delivery.dlq", attribute.String("reason", reason))
	e.log.WithContext(ctx).WithDelivery(d.ID).WithOrg(d.Payload.OrgID).WithFields(map[string]any{
		"reason":   reason,
		"attempts": len(d.Attempts),
	}).Warn("moved to dlq")

	e.emit(Event{
		Kind:         EventDLQ,
		DeliveryID:   d.ID,
		OrgID:        d.Payload.OrgID,
		EventType:    d.Payload.EventType,
		Attempt:      len(d.Attempts),
		Reason:       reason,
		At:           t,
		TraceHeaders: tracing.InjectHeaders(ctx),
	})
}

func (e *Engine) retryableStatus(code int) bool {
	for _, c := range e.cfg.RetryableStatuses {
		if c == code {
			return true
		}
	}
	return false
}

// summarizeErrors returns the unique error strings across attempts, in
// first-seen order, for operator triage.
func summarizeErrors(attempts []Attempt) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range attempts {
		if a.Error == "" || seen[a.Error] {
			continue
		}
		seen[a.Error] = true
		out = append(out, a.Error)
	}
	return out
}

// networkReason buckets request-level faults the way operators care about.
func networkReason(err error) string {
	if err == nil {
		return "network"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return "dns_error"
	default:
		return "network"
	}
}

// hostOf extracts the destination host (including port) used as the breaker
// key.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
