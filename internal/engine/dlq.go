package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hooklinehq/hookline/internal/metrics"
)

// ErrCannotRetry is returned when a dead-letter entry has exhausted its
// re-drive budget.
var ErrCannotRetry = errors.New("dead letter entry can no longer be retried")

// BulkRetryResult summarizes a bulk re-drive.
type BulkRetryResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ListDLQ returns dead-letter entries matching the filter, newest first.
func (e *Engine) ListDLQ(ctx context.Context, f DLQFilter) ([]*DeadLetterEntry, error) {
	return e.dlqStore.List(ctx, f)
}

// RetryDLQ re-drives a dead-letter entry as a brand-new delivery. On
// success the entry is deleted; otherwise its retry counter is incremented,
// forcing can_retry off once the budget is spent.
func (e *Engine) RetryDLQ(ctx context.Context, entryID string) (*Delivery, error) {
	entry, err := e.dlqStore.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.CanRetry {
		return nil, fmt.Errorf("%w: entry %s", ErrCannotRetry, entryID)
	}

	// Re-drive is a new delivery with a fresh attempt history; the original
	// delivery stays terminal.
	d := &Delivery{
		ID:        uuid.NewString(),
		Payload:   entry.Payload,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}
	if err := e.deliveries.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("storing redriven delivery: %w", err)
	}
	e.attempt(ctx, d, 1)

	if d.Status == StatusDelivered {
		if err := e.dlqStore.Delete(ctx, entryID); err != nil && !errors.Is(err, ErrNotFound) {
			e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dlq delete after redrive failed")
		}
		return d, nil
	}

	entry.RetryCount++
	if entry.RetryCount >= e.cfg.DLQRetryLimit {
		entry.CanRetry = false
	}
	if err := e.dlqStore.Put(ctx, entry); err != nil {
		e.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dlq update after redrive failed")
	}
	return d, nil
}

// BulkRetryDLQ re-drives every retryable entry matching the filter and
// returns success/failure counts.
func (e *Engine) BulkRetryDLQ(ctx context.Context, f DLQFilter) (BulkRetryResult, error) {
	canRetry := true
	f.CanRetry = &canRetry

	entries, err := e.dlqStore.List(ctx, f)
	if err != nil {
		return BulkRetryResult{}, err
	}

	var res BulkRetryResult
	for _, entry := range entries {
		d, err := e.RetryDLQ(ctx, entry.ID)
		if err != nil || d.Status != StatusDelivered {
			res.Failed++
			continue
		}
		res.Successful++
	}
	return res, nil
}

// PurgeExpired deletes entries past their expiry and returns how many were
// removed.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	entries, err := e.dlqStore.List(ctx, DLQFilter{})
	if err != nil {
		return 0, err
	}

	now := e.now()
	purged := 0
	for _, entry := range entries {
		if entry.ExpiresAt.After(now) {
			continue
		}
		if err := e.dlqStore.Delete(ctx, entry.ID); err != nil {
			e.log.WithContext(ctx).WithError(err).WithField("entry_id", entry.ID).Error("dlq purge delete failed")
			continue
		}
		purged++
	}

	if purged > 0 {
		metrics.RecordDLQPurge(purged)
		e.log.WithContext(ctx).WithField("purged", purged).Info("purged expired dlq entries")
		e.emit(Event{Kind: EventDLQPurged, Purged: purged, At: now})
	}
	return purged, nil
}
