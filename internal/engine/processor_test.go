package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProcessorTickDrainsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng, deliveries, _, clock, _ := newTestEngine(testConfig())
	p := NewProcessor(eng, time.Second)
	p.rnd = func() float64 { return 1 } // never trigger the purge sweep

	d, err := eng.Submit(context.Background(), payloadFor(srv.URL))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	clock.Advance(time.Second)
	p.tick(context.Background())

	got, _ := deliveries.Get(context.Background(), d.ID)
	if got.Status != StatusDelivered {
		t.Errorf("status after tick = %q, want %q", got.Status, StatusDelivered)
	}
}

func TestProcessorTickPurgeSweep(t *testing.T) {
	eng, _, dlq, clock, _ := newTestEngine(testConfig())
	now := clock.Now()

	expired := &DeadLetterEntry{
		ID: "dlq_old", DeliveryID: "d1", Payload: payloadFor("http://example.com/hook"),
		Reason: ReasonMaxRetries, At: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute), CanRetry: true,
	}
	if err := dlq.Put(context.Background(), expired); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	p := NewProcessor(eng, time.Second)
	p.rnd = func() float64 { return 0 } // force the purge sweep
	p.tick(context.Background())

	entries, _ := dlq.List(context.Background(), DLQFilter{})
	if len(entries) != 0 {
		t.Errorf("entries after purge sweep = %d, want 0", len(entries))
	}
}

func TestProcessorRunStopsOnCancel(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(testConfig())
	p := NewProcessor(eng, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after context cancellation")
	}
}

func TestNewProcessorDefaultsInterval(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(testConfig())
	p := NewProcessor(eng, 0)
	if p.interval != DefaultTickInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultTickInterval)
	}
}
