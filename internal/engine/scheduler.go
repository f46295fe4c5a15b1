package engine

import (
	"sort"
	"sync"
	"time"
)

type pendingRetry struct {
	deliveryID string
	executeAt  time.Time
}

// Scheduler keeps a time-ordered queue of pending redeliveries. The
// background processor pops everything that has come due each tick.
type Scheduler struct {
	mu    sync.Mutex
	queue []pendingRetry
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule enqueues a redelivery at the given time, keeping the queue
// ordered by execute time.
func (s *Scheduler) Schedule(deliveryID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].executeAt.After(at)
	})
	s.queue = append(s.queue, pendingRetry{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = pendingRetry{deliveryID: deliveryID, executeAt: at}
}

// Due removes and returns the ids of all entries whose execute time is at or
// before now, in execute order.
func (s *Scheduler) Due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].executeAt.After(now)
	})
	if n == 0 {
		return nil
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = s.queue[i].deliveryID
	}
	s.queue = append(s.queue[:0], s.queue[n:]...)
	return ids
}

// Len reports the number of pending redeliveries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
