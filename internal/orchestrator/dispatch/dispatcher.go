// Package dispatch runs translation jobs one at a time off the capture worker.
// A job submitted while another is running waits in a single pending slot;
// a newer submission replaces it, so only the latest batch is sent.
package dispatch

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/game-translator/internal/trace"
)

// Job is one unit of background work.
type Job func(ctx context.Context)

// Outcome describes what Submit did with a job.
type Outcome int

const (
	Started Outcome = iota
	Queued
	Replaced
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case Queued:
		return "queued"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Dispatcher serializes jobs with at most one in flight and one pending.
type Dispatcher struct {
	ctx     context.Context
	mu      sync.Mutex
	busy    bool
	pending Job
	closed  bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. Jobs receive ctx detached from its cancellation.
func New(ctx context.Context) *Dispatcher {
	return &Dispatcher{ctx: context.WithoutCancel(ctx)}
}

// Submit runs job now when idle, otherwise parks it as the pending job.
func (d *Dispatcher) Submit(job Job) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Dropped
	}
	if d.busy {
		out := Queued
		if d.pending != nil {
			out = Replaced
		}
		d.pending = job
		return out
	}
	d.busy = true
	d.wg.Add(1)
	go d.run(job)
	return Started
}

func (d *Dispatcher) run(job Job) {
	defer d.wg.Done()
	for job != nil {
		d.exec(job)

		d.mu.Lock()
		job, d.pending = d.pending, nil
		if job == nil || d.closed {
			job = nil
			d.busy = false
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) exec(job Job) {
	defer func() {
		if r := recover(); r != nil {
			trace.Logger(d.ctx).Error("dispatched job panicked", "panic", r)
		}
	}()
	job(d.ctx)
}

// Busy reports whether a job is running.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Pending reports whether a job is waiting.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Wait blocks until the running job and any pending job have finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Close drops the pending job, rejects new ones and waits for the running job.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.pending = nil
	d.mu.Unlock()
	d.wg.Wait()
}
