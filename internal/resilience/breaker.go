// Package resilience guards calls to the translation backend and the remote
// OCR engine with a circuit breaker and jittered retries.
package resilience

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is the circuit breaker state.
type State uint32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned by Allow while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips after Threshold consecutive failures and lets a trial call through after ResetTimeout.
// All state is atomic so the capture worker and translation workers can share one.
type Breaker struct {
	cfg         Config
	state       atomic.Uint32
	failures    atomic.Int32
	successes   atomic.Int32
	lastFailure atomic.Int64 // unix nano
	hook        atomic.Pointer[func(from, to State)]
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults()}
	b.state.Store(uint32(Closed))
	return b
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// WithHook registers a state change callback.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.hook.Store(&fn)
	return b
}

// Allow returns nil when a call may proceed.
func (b *Breaker) Allow() error {
	if State(b.state.Load()) != Open {
		return nil
	}
	if b.cooledDown() {
		b.transition(HalfOpen)
		return nil
	}
	return ErrOpen
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.lastFailure.Store(time.Now().UnixNano())
	n := b.failures.Add(1)

	switch State(b.state.Load()) {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if n >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Reset forces the breaker closed.
func (b *Breaker) Reset() { b.transition(Closed) }

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}

	b.successes.Store(0)
	log := slog.With("breaker", b.cfg.Name)
	switch to {
	case Closed:
		b.failures.Store(0)
		log.Info("circuit breaker closed")
	case Open:
		log.Warn("circuit breaker opened", "failures", b.failures.Load())
	case HalfOpen:
		log.Info("circuit breaker half-open")
	}

	if fn := b.hook.Load(); fn != nil {
		(*fn)(from, to)
	}
}

func (b *Breaker) cooledDown() bool {
	last := b.lastFailure.Load()
	return last == 0 || time.Since(time.Unix(0, last)) > b.cfg.ResetTimeout
}

// Execute runs fn under breaker protection.
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ExecuteWithResult runs fn under breaker protection and returns its value.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return v, nil
}
