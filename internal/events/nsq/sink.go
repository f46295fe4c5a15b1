// Package nsq publishes engine lifecycle events to an NSQ topic so external
// alerting and audit consumers can subscribe without touching the engine.
package nsq

import (
	"encoding/json"

	gonsq "github.com/nsqio/go-nsq"

	"github.com/hooklinehq/hookline/internal/engine"
	"github.com/hooklinehq/hookline/internal/logging"
)

// Sink publishes every engine event as a JSON message. Publish errors are
// logged, never propagated; the delivery path must not stall on telemetry.
type Sink struct {
	producer *gonsq.Producer
	topic    string
	log      *logging.Logger
}

// NewSink connects a producer to nsqd at addr.
func NewSink(addr, topic string) (*Sink, error) {
	producer, err := gonsq.NewProducer(addr, gonsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &Sink{
		producer: producer,
		topic:    topic,
		log:      logging.New("hookline-nsq-sink"),
	}, nil
}

// Emit implements engine.Sink.
func (s *Sink) Emit(ev engine.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.log.Plain().WithError(err).Error("marshal event failed")
		return
	}
	// PublishAsync keeps the delivery path non-blocking.
	if err := s.producer.PublishAsync(s.topic, body, nil); err != nil {
		s.log.Plain().WithDelivery(ev.DeliveryID).WithError(err).Error("event publish failed")
	}
}

// Stop flushes and shuts down the producer.
func (s *Sink) Stop() {
	s.producer.Stop()
}
