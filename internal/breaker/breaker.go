// Package breaker provides per-host circuit breakers so a receiver that is
// down cannot burn transport capacity meant for healthy ones.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the breaker short-circuits the call.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state for a single host.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds. The zero value is unusable; use
// DefaultConfig and override as needed.
type Config struct {
	FailureThreshold    int           // consecutive failures before closed -> open
	SuccessThreshold    int           // consecutive half-open successes before -> closed
	Cooldown            time.Duration // open -> half-open after this much quiet time
	HalfOpenMaxAttempts int           // probe budget while half-open
}

// DefaultConfig returns the standard breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		Cooldown:            60 * time.Second,
		HalfOpenMaxAttempts: 3,
	}
}

type hostState struct {
	state            State
	failures         int
	successes        int
	halfOpenAttempts int
	lastFailure      time.Time
}

// Registry holds one independent breaker per destination host.
type Registry struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	cfg   Config
	now   func() time.Time
}

// NewRegistry creates a Registry with the given thresholds.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		hosts: make(map[string]*hostState),
		cfg:   cfg,
		now:   time.Now,
	}
}

// Execute runs fn through the host's breaker. When the breaker is open and
// the cooldown has not elapsed, or the half-open probe budget is spent, fn is
// not invoked and ErrOpen is returned. Otherwise fn runs and its result is
// recorded against the breaker.
func (r *Registry) Execute(host string, fn func() error) error {
	if err := r.allow(host); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		r.recordFailure(host)
	} else {
		r.recordSuccess(host)
	}
	return err
}

// StateOf reports the breaker state for host. Hosts never seen are closed.
func (r *Registry) StateOf(host string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.hosts[host]
	if !ok {
		return StateClosed
	}
	return s.state
}

// allow reserves permission for one call. The check and any resulting
// transition happen under the registry lock so two concurrent callers cannot
// both spend the same half-open probe slot.
func (r *Registry) allow(host string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.host(host)
	switch s.state {
	case StateClosed:
		return nil
	case StateOpen:
		if r.now().Sub(s.lastFailure) < r.cfg.Cooldown {
			return ErrOpen
		}
		s.state = StateHalfOpen
		s.successes = 0
		s.halfOpenAttempts = 1
		return nil
	case StateHalfOpen:
		if s.halfOpenAttempts >= r.cfg.HalfOpenMaxAttempts {
			// Probe budget spent without recovering; back to open.
			s.state = StateOpen
			s.lastFailure = r.now()
			return ErrOpen
		}
		s.halfOpenAttempts++
		return nil
	}
	return nil
}

func (r *Registry) recordSuccess(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.host(host)
	switch s.state {
	case StateClosed:
		s.failures = 0
	case StateHalfOpen:
		s.successes++
		if s.successes >= r.cfg.SuccessThreshold {
			s.state = StateClosed
			s.failures = 0
			s.successes = 0
			s.halfOpenAttempts = 0
		}
	}
}

func (r *Registry) recordFailure(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.host(host)
	s.lastFailure = r.now()
	switch s.state {
	case StateClosed:
		s.failures++
		if s.failures >= r.cfg.FailureThreshold {
			s.state = StateOpen
		}
	case StateHalfOpen:
		s.state = StateOpen
		s.successes = 0
	}
}

// host returns the state entry for host, creating it closed if absent.
// Caller must hold r.mu.
func (r *Registry) host(host string) *hostState {
	s, ok := r.hosts[host]
	if !ok {
		s = &hostState{state: StateClosed}
		r.hosts[host] = s
	}
	return s
}
