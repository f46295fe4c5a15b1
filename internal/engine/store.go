package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by stores for unknown ids.
var ErrNotFound = errors.New("not found")

// DeliveryStore persists deliveries. Implementations must treat values as
// owned by the caller: Put stores a snapshot, Get returns one.
type DeliveryStore interface {
	Put(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id string) (*Delivery, error)
	List(ctx context.Context) ([]*Delivery, error)
}

// DLQFilter selects dead-letter entries. Zero fields match everything.
type DLQFilter struct {
	OrgID     string
	EventType string
	CanRetry  *bool
	Since     time.Time
}

// Matches reports whether the entry satisfies the filter.
func (f DLQFilter) Matches(e *DeadLetterEntry) bool {
	if f.OrgID != "" && e.Payload.OrgID != f.OrgID {
		return false
	}
	if f.EventType != "" && e.Payload.EventType != f.EventType {
		return false
	}
	if f.CanRetry != nil && e.CanRetry != *f.CanRetry {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	return true
}

// DeadLetterStore persists dead-letter entries.
type DeadLetterStore interface {
	Put(ctx context.Context, e *DeadLetterEntry) error
	Get(ctx context.Context, id string) (*DeadLetterEntry, error)
	Delete(ctx context.Context, id string) error
	// List returns matching entries newest-first.
	List(ctx context.Context, f DLQFilter) ([]*DeadLetterEntry, error)
}

// MemoryDeliveryStore is the in-process DeliveryStore.
type MemoryDeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[string]*Delivery
}

// NewMemoryDeliveryStore creates an empty in-memory delivery store.
func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{deliveries: make(map[string]*Delivery)}
}

func (s *MemoryDeliveryStore) Put(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, id string) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryDeliveryStore) List(_ context.Context) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, d.Clone())
	}
	return out, nil
}

// MemoryDeadLetterStore is the in-process DeadLetterStore.
type MemoryDeadLetterStore struct {
	mu      sync.RWMutex
	entries map[string]*DeadLetterEntry
}

// NewMemoryDeadLetterStore creates an empty in-memory dead-letter store.
func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{entries: make(map[string]*DeadLetterEntry)}
}

func (s *MemoryDeadLetterStore) Put(_ context.Context, e *DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *MemoryDeadLetterStore) Get(_ context.Context, id string) (*DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryDeadLetterStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryDeadLetterStore) List(_ context.Context, f DLQFilter) ([]*DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DeadLetterEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}
