package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects calls. It is an
// internal routing signal: the cache engine and task manager translate it
// into fallback behavior, it never reaches their callers.
var ErrOpen = errors.New("circuit breaker is open")

type Status string

const (
	Closed   Status = "CLOSED"
	Open     Status = "OPEN"
	HalfOpen Status = "HALF_OPEN"
)

// State is a read-only snapshot for reporting.
type State struct {
	Status        Status    `json:"status"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

// Breaker tracks consecutive failures against one dependency and fails fast
// while it is unhealthy. All transitions happen under a single mutex; the
// allow decision and the later outcome recording are safe to interleave
// across callers, and at most one caller is ever the HALF_OPEN probe.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	status      Status
	failures    int
	lastFailure time.Time
	probing     bool

	now func() time.Time
}

func New(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		status:           Closed,
		now:              time.Now,
	}
}

// Allow decides whether the next call may reach the dependency. While OPEN it
// returns ErrOpen until the recovery timeout has elapsed, then admits exactly
// one probe and moves to HALF_OPEN. A second caller arriving while the probe
// is in flight is rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.lastFailure) < b.recoveryTimeout {
			return ErrOpen
		}
		b.status = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.status = Closed
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	if b.status == HalfOpen {
		b.probing = false
		b.status = Open
		return
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.status = Open
	}
}

// NoteHealthy lets an out-of-band health check accelerate recovery: an OPEN
// breaker becomes HALF_OPEN ahead of its timeout, a HALF_OPEN one closes.
func (b *Breaker) NoteHealthy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case Open:
		b.status = HalfOpen
		b.failures = 0
		b.probing = false
	case HalfOpen:
		b.status = Closed
		b.failures = 0
		b.probing = false
	}
}

// ForceReset is the administrative override: back to CLOSED, counters zeroed.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status = Closed
	b.failures = 0
	b.probing = false
	b.lastFailure = time.Time{}
}

func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return State{
		Status:        b.status,
		FailureCount:  b.failures,
		LastFailureAt: b.lastFailure,
	}
}
