package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/hooklinehq/hookline/internal/logging"
)

// DefaultTickInterval is how often the background processor wakes up.
const DefaultTickInterval = 5 * time.Second

// purgeChance is the per-tick probability of running a DLQ expiry sweep.
const purgeChance = 0.01

// Processor is the background loop: drains due retries every tick and
// opportunistically purges expired dead-letter entries.
type Processor struct {
	engine   *Engine
	interval time.Duration
	log      *logging.Logger
	rnd      func() float64
}

// NewProcessor creates a Processor for the engine. A non-positive interval
// falls back to DefaultTickInterval.
func NewProcessor(e *Engine, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Processor{
		engine:   e,
		interval: interval,
		log:      logging.New("hookline-processor"),
		rnd:      rand.Float64,
	}
}

// Run drives the processor until the context is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Plain().WithField("interval", p.interval.String()).Info("background processor started")
	for {
		select {
		case <-ctx.Done():
			p.log.Plain().Info("background processor stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	if n := p.engine.ProcessDue(ctx); n > 0 {
		p.log.WithContext(ctx).WithField("processed", n).Debug("drained due retries")
	}
	if p.rnd() < purgeChance {
		if _, err := p.engine.PurgeExpired(ctx); err != nil {
			p.log.WithContext(ctx).WithError(err).Error("dlq purge sweep failed")
		}
	}
}
