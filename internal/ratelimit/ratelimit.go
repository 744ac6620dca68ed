// Package ratelimit bounds submission volume over a rolling time window.
//
// The counting rule is a pure function of its inputs (TryAcquire), enabling
// deterministic testing with injected clocks. State lives wherever the caller
// puts it: session memory for a single form instance (MemoryStore) or a shared
// database keyed by client identity (db.RateLimitStore).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default bounds: 200 submissions per rolling 24-hour window.
// Configuration, not constants; override via Limits.
const (
	DefaultMax    = 200
	DefaultWindow = 24 * time.Hour
)

// Limits configures the maximum count and window duration.
type Limits struct {
	Max    int
	Window time.Duration
}

// DefaultLimits returns the reference limits (200 per 24h).
func DefaultLimits() Limits {
	return Limits{Max: DefaultMax, Window: DefaultWindow}
}

// State is one client's position in the current window.
// Count never decrements except by window reset; WindowStart is set exactly
// once per window, on the first acquisition that opens it.
type State struct {
	Count       int
	WindowStart time.Time
}

// RetryAfter returns the time until the current window elapses, clamped to
// zero. Meaningful only after a denied acquisition.
func (s State) RetryAfter(now time.Time, limits Limits) time.Duration {
	d := s.WindowStart.Add(limits.Window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TryAcquire decides whether a new submission attempt is allowed.
// If the window has elapsed (now - WindowStart > Window) the state is treated
// as a fresh window before evaluating. Pure function: no I/O, no clock reads.
func TryAcquire(state State, now time.Time, limits Limits) (allowed bool, newState State) {
	if now.Sub(state.WindowStart) > limits.Window {
		state = State{WindowStart: now}
	}

	if state.Count < limits.Max {
		state.Count++
		return true, state
	}
	return false, state
}

// Store persists per-key window state between acquisitions. Implementations
// apply TryAcquire against the stored state and write back the result.
type Store interface {
	Acquire(ctx context.Context, key string, now time.Time, limits Limits) (bool, State, error)
}

// MemoryStore keeps window state in process memory. This is the session-scoped
// behavior of the original design: counters do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Acquire implements Store.
func (m *MemoryStore) Acquire(_ context.Context, key string, now time.Time, limits Limits) (bool, State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed, state := TryAcquire(m.states[key], now, limits)
	m.states[key] = state
	return allowed, state, nil
}
