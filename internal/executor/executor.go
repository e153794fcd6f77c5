// Package executor serializes agent turns onto named lanes. Each lane is a
// single FIFO worker goroutine, so everything submitted to one lane runs
// exactly one turn at a time, in submission order. The interactive
// conversation is only ever touched from the main lane; scheduled runs go to
// the events lane and never contend with it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// Lane constants for the turn queue
const (
	LaneMain   = "main"   // interactive conversation, single-flight
	LaneEvents = "events" // scheduled/triggered executions
)

// queueSize bounds how many turns can wait per lane before Submit blocks.
const queueSize = 64

// ErrStopped is returned for submissions after Stop.
var ErrStopped = errors.New("executor: stopped")

// Run is one unit of work, typically a full agent turn. It may block for a
// long time; the executor imposes no timeout.
type Run func(ctx context.Context) (string, error)

// Outcome reports how a turn ended. Exactly one of Output and Err carries the
// result.
type Outcome struct {
	Output     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type task struct {
	ctx  context.Context
	run  Run
	done func(Outcome)
}

// Executor owns the lane workers
type Executor struct {
	mu      sync.Mutex
	lanes   map[string]chan task
	stopped bool
	wg      sync.WaitGroup
}

// New creates an executor with the standard lanes and starts their workers
func New() *Executor {
	e := &Executor{lanes: make(map[string]chan task)}
	for _, lane := range []string{LaneMain, LaneEvents} {
		ch := make(chan task, queueSize)
		e.lanes[lane] = ch
		e.wg.Add(1)
		go e.worker(lane, ch)
	}
	return e
}

// Submit enqueues a turn on the given lane and blocks until it completes.
// Only the caller blocks; other lanes keep draining.
func (e *Executor) Submit(ctx context.Context, lane string, run Run) Outcome {
	done := make(chan Outcome, 1)
	if err := e.enqueue(ctx, lane, run, func(o Outcome) { done <- o }); err != nil {
		return Outcome{Err: err}
	}
	return <-done
}

// SubmitAsync enqueues a turn and returns immediately. The done callback, if
// non-nil, fires on the lane worker goroutine when the turn finishes. Used by
// the scheduler's timer callbacks, which must never block.
func (e *Executor) SubmitAsync(lane string, run Run, done func(Outcome)) error {
	return e.enqueue(context.Background(), lane, run, done)
}

func (e *Executor) enqueue(ctx context.Context, lane string, run Run, done func(Outcome)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	ch, ok := e.lanes[lane]
	if !ok {
		return fmt.Errorf("executor: unknown lane %q", lane)
	}

	// Held lock keeps Stop from closing the channel mid-send. Workers never
	// take the lock, so a full queue still drains.
	ch <- task{ctx: ctx, run: run, done: done}
	return nil
}

// worker drains one lane in FIFO order
func (e *Executor) worker(lane string, ch <-chan task) {
	defer e.wg.Done()
	for t := range ch {
		outcome := execute(t.ctx, t.run)
		if outcome.Err != nil {
			logging.Errorf("executor: turn on lane %s failed: %v", lane, outcome.Err)
		}
		if t.done != nil {
			t.done(outcome)
		}
	}
}

// execute runs one turn with panic containment so a misbehaving turn can
// never take down its lane worker
func execute(ctx context.Context, run Run) (out Outcome) {
	out.StartedAt = time.Now()
	defer func() {
		out.FinishedAt = time.Now()
		if r := recover(); r != nil {
			out.Output = ""
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	out.Output, out.Err = run(ctx)
	return out
}

// Stop rejects new submissions and waits for queued turns to drain
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, ch := range e.lanes {
		close(ch)
	}
	e.mu.Unlock()

	e.wg.Wait()
}
