// Package engine implements the webhook delivery engine: dispatching,
// retry scheduling, dead-lettering, and delivery bookkeeping.
package engine

import "time"

// DeliveryStatus is the lifecycle state of a Delivery. Transitions are
// monotone: pending -> delivered, or pending -> failed -> ... -> dlq. A
// delivery never re-enters pending once terminal.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusDLQ       DeliveryStatus = "dlq"
)

// AttemptStatus is the outcome of a single HTTP attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
	AttemptTimeout AttemptStatus = "timeout"
	AttemptDLQ     AttemptStatus = "dlq"
)

// Payload is the caller-supplied event to deliver. It is created once and
// never mutated by the engine.
type Payload struct {
	ID        string            `json:"id"`
	WebhookID string            `json:"webhook_id"`
	OrgID     string            `json:"org_id"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      map[string]any    `json:"body"`
	EventType string            `json:"event_type"`
	EventID   string            `json:"event_id"`
	CreatedAt time.Time         `json:"created_at"`
	Signature string            `json:"signature,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Attempt records one concrete HTTP request (or fault) within a delivery.
// Attempt numbers within a delivery are strictly increasing from 1.
type Attempt struct {
	ID          string        `json:"id"`
	PayloadID   string        `json:"payload_id"`
	Number      int           `json:"attempt_number"`
	Status      AttemptStatus `json:"status"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Response    string        `json:"response,omitempty"`
	Error       string        `json:"error,omitempty"`
	LatencyMS   int64         `json:"latency_ms,omitempty"`
	At          time.Time     `json:"at"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
}

// Delivery is the aggregate root: one payload plus its attempt history.
type Delivery struct {
	ID          string         `json:"id"`
	Payload     Payload        `json:"payload"`
	Attempts    []Attempt      `json:"attempts"`
	Status      DeliveryStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	DLQAt       *time.Time     `json:"dlq_at,omitempty"`
	DLQReason   string         `json:"dlq_reason,omitempty"`
}

// Clone returns a deep copy of the delivery so stored state cannot be
// mutated through shared slices.
func (d *Delivery) Clone() *Delivery {
	cp := *d
	cp.Attempts = make([]Attempt, len(d.Attempts))
	copy(cp.Attempts, d.Attempts)
	return &cp
}

// DeadLetterEntry holds a terminally failed delivery pending re-drive or
// expiry.
type DeadLetterEntry struct {
	ID           string    `json:"id"`
	DeliveryID   string    `json:"delivery_id"`
	Payload      Payload   `json:"payload"`
	Attempts     []Attempt `json:"attempts"`
	Reason       string    `json:"reason"`
	ErrorSummary []string  `json:"error_summary,omitempty"`
	At           time.Time `json:"at"`
	ExpiresAt    time.Time `json:"expires_at"`
	CanRetry     bool      `json:"can_retry"`
	RetryCount   int       `json:"retry_count"`
}

// Clone returns a deep copy of the entry.
func (e *DeadLetterEntry) Clone() *DeadLetterEntry {
	cp := *e
	cp.Attempts = make([]Attempt, len(e.Attempts))
	copy(cp.Attempts, e.Attempts)
	cp.ErrorSummary = append([]string(nil), e.ErrorSummary...)
	return &cp
}

// Metrics is a read-only projection over delivery and attempt history.
type Metrics struct {
	TotalDeliveries      int     `json:"total_deliveries"`
	SuccessfulDeliveries int     `json:"successful_deliveries"`
	FailedDeliveries     int     `json:"failed_deliveries"`
	DLQSize              int     `json:"dlq_size"`
	AvgLatencyMS         float64 `json:"avg_latency_ms"`
	P95LatencyMS         int64   `json:"p95_latency_ms"`
	P99LatencyMS         int64   `json:"p99_latency_ms"`
	SuccessRate          float64 `json:"success_rate"`
	RetryRate            float64 `json:"retry_rate"`
}
