package engine

import (
	"time"

	"github.com/hooklinehq/hookline/internal/logging"
)

// EventKind identifies a lifecycle event emitted by the engine.
type EventKind string

const (
	EventDelivered      EventKind = "delivered"
	EventRetryScheduled EventKind = "retry_scheduled"
	EventDLQ            EventKind = "dlq"
	EventDLQPurged      EventKind = "dlq_purged"
)

// Event is the payload handed to registered sinks. Not every field is set
// for every kind: dlq_purged carries only Purged and At.
type Event struct {
	Kind         EventKind         `json:"kind"`
	DeliveryID   string            `json:"delivery_id,omitempty"`
	OrgID        string            `json:"org_id,omitempty"`
	EventType    string            `json:"event_type,omitempty"`
	Attempt      int               `json:"attempt,omitempty"`
	NextRetryAt  *time.Time        `json:"next_retry_at,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Purged       int               `json:"purged,omitempty"`
	At           time.Time         `json:"at"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// Sink receives lifecycle events. Emit is called synchronously on the
// delivery path and must not block.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// LogSink writes every event through the structured logger.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink logging to the given service logger.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ev Event) {
	entry := s.log.Plain().
		WithDelivery(ev.DeliveryID).
		WithOrg(ev.OrgID).
		WithField("kind", string(ev.Kind))
	if ev.Attempt > 0 {
		entry = entry.WithField("attempt", ev.Attempt)
	}
	if ev.Reason != "" {
		entry = entry.WithField("reason", ev.Reason)
	}
	if ev.Kind == EventDLQPurged {
		entry = entry.WithField("purged", ev.Purged)
	}
	entry.Info("delivery event")
}

func (e *Engine) emit(ev Event) {
	for _, s := range e.sinks {
		s.Emit(ev)
	}
}
