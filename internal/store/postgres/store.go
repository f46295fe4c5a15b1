// Package postgres provides durable implementations of the engine's storage
// interfaces so the same engine logic can run against a real database
// instead of the in-memory maps.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hooklinehq/hookline/internal/engine"
)

// Connect establishes a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// DeliveryStore is the pgx-backed engine.DeliveryStore.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryStore wraps a pool.
func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

func (s *DeliveryStore) Put(ctx context.Context, d *engine.Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	attempts, err := json.Marshal(d.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO hookline.deliveries(id, status, payload, attempts, created_at, delivered_at, failed_at, dlq_at, dlq_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			delivered_at = EXCLUDED.delivered_at,
			failed_at = EXCLUDED.failed_at,
			dlq_at = EXCLUDED.dlq_at,
			dlq_reason = EXCLUDED.dlq_reason,
			updated_at = now()`,
		d.ID, string(d.Status), payload, attempts, d.CreatedAt, d.DeliveredAt, d.FailedAt, d.DLQAt, nullable(d.DLQReason),
	)
	return err
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (*engine.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, payload, attempts, created_at, delivered_at, failed_at, dlq_at, COALESCE(dlq_reason, '')
		FROM hookline.deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return d, err
}

func (s *DeliveryStore) List(ctx context.Context) ([]*engine.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, payload, attempts, created_at, delivered_at, failed_at, dlq_at, COALESCE(dlq_reason, '')
		FROM hookline.deliveries ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*engine.Delivery, error) {
	var (
		d        engine.Delivery
		status   string
		payload  []byte
		attempts []byte
	)
	if err := row.Scan(&d.ID, &status, &payload, &attempts, &d.CreatedAt, &d.DeliveredAt, &d.FailedAt, &d.DLQAt, &d.DLQReason); err != nil {
		return nil, err
	}
	d.Status = engine.DeliveryStatus(status)
	if err := json.Unmarshal(payload, &d.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal(attempts, &d.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return &d, nil
}

// DeadLetterStore is the pgx-backed engine.DeadLetterStore.
type DeadLetterStore struct {
	pool *pgxpool.Pool
}

// NewDeadLetterStore wraps a pool.
func NewDeadLetterStore(pool *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{pool: pool}
}

func (s *DeadLetterStore) Put(ctx context.Context, e *engine.DeadLetterEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	attempts, err := json.Marshal(e.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	summary, err := json.Marshal(e.ErrorSummary)
	if err != nil {
		return fmt.Errorf("marshal error summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO hookline.dlq(id, delivery_id, payload, attempts, reason, error_summary, org_id, event_type, at, expires_at, can_retry, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			can_retry = EXCLUDED.can_retry,
			retry_count = EXCLUDED.retry_count`,
		e.ID, e.DeliveryID, payload, attempts, e.Reason, summary,
		e.Payload.OrgID, e.Payload.EventType, e.At, e.ExpiresAt, e.CanRetry, e.RetryCount,
	)
	return err
}

func (s *DeadLetterStore) Get(ctx context.Context, id string) (*engine.DeadLetterEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, delivery_id, payload, attempts, reason, error_summary, at, expires_at, can_retry, retry_count
		FROM hookline.dlq WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return e, err
}

func (s *DeadLetterStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hookline.dlq WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *DeadLetterStore) List(ctx context.Context, f engine.DLQFilter) ([]*engine.DeadLetterEntry, error) {
	query := `
		SELECT id, delivery_id, payload, attempts, reason, error_summary, at, expires_at, can_retry, retry_count
		FROM hookline.dlq WHERE 1=1`
	var args []any
	if f.OrgID != "" {
		args = append(args, f.OrgID)
		query += fmt.Sprintf(" AND org_id = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if f.CanRetry != nil {
		args = append(args, *f.CanRetry)
		query += fmt.Sprintf(" AND can_retry = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND at >= $%d", len(args))
	}
	query += " ORDER BY at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.DeadLetterEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (*engine.DeadLetterEntry, error) {
	var (
		e        engine.DeadLetterEntry
		payload  []byte
		attempts []byte
		summary  []byte
	)
	if err := row.Scan(&e.ID, &e.DeliveryID, &payload, &attempts, &e.Reason, &summary, &e.At, &e.ExpiresAt, &e.CanRetry, &e.RetryCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal(attempts, &e.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if err := json.Unmarshal(summary, &e.ErrorSummary); err != nil {
		return nil, fmt.Errorf("unmarshal error summary: %w", err)
	}
	return &e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
