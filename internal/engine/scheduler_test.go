package engine

import (
	"testing"
	"time"
)

func TestSchedulerOrdering(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order; Due must return in execute order.
	s.Schedule("c", base.Add(3*time.Second))
	s.Schedule("a", base.Add(1*time.Second))
	s.Schedule("b", base.Add(2*time.Second))

	ids := s.Due(base.Add(5 * time.Second))
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("Due() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Due()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestSchedulerDuePopsOnlyElapsed(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("soon", base.Add(time.Second))
	s.Schedule("later", base.Add(time.Minute))

	tests := []struct {
		name    string
		now     time.Time
		want    []string
		wantLen int
	}{
		{"nothing due", base, nil, 2},
		{"boundary is inclusive", base.Add(time.Second), []string{"soon"}, 1},
		{"rest comes due", base.Add(2 * time.Minute), []string{"later"}, 0},
		{"drained", base.Add(time.Hour), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Due(tt.now)
			if len(got) != len(tt.want) {
				t.Fatalf("Due() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Due()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if s.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", s.Len(), tt.wantLen)
			}
		})
	}
}

func TestSchedulerSameInstant(t *testing.T) {
	s := NewScheduler()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("x", at)
	s.Schedule("y", at)

	ids := s.Due(at)
	if len(ids) != 2 {
		t.Fatalf("Due() returned %d ids, want 2", len(ids))
	}
}
