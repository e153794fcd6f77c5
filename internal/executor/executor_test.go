package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubmitReturnsOutput(t *testing.T) {
	e := New()
	defer e.Stop()

	out := e.Submit(context.Background(), LaneMain, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Output != "done" {
		t.Errorf("expected output 'done', got %q", out.Output)
	}
	if out.FinishedAt.Before(out.StartedAt) {
		t.Error("finished before started")
	}
}

func TestSubmitReturnsError(t *testing.T) {
	e := New()
	defer e.Stop()

	boom := errors.New("boom")
	out := e.Submit(context.Background(), LaneMain, func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(out.Err, boom) {
		t.Errorf("expected boom error, got %v", out.Err)
	}
}

func TestLaneIsFIFO(t *testing.T) {
	e := New()
	defer e.Stop()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		err := e.SubmitAsync(LaneMain, func(ctx context.Context) (string, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return "", nil
		}, func(Outcome) { wg.Done() })
		if err != nil {
			t.Fatalf("SubmitAsync: %v", err)
		}
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLanesDoNotBlockEachOther(t *testing.T) {
	e := New()
	defer e.Stop()

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the main lane with a long turn
	go e.Submit(context.Background(), LaneMain, func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	})
	<-started

	// The events lane must still drain
	done := make(chan Outcome, 1)
	if err := e.SubmitAsync(LaneEvents, func(ctx context.Context) (string, error) {
		return "events ran", nil
	}, func(o Outcome) { done <- o }); err != nil {
		t.Fatalf("SubmitAsync: %v", err)
	}

	select {
	case out := <-done:
		if out.Output != "events ran" {
			t.Errorf("unexpected output %q", out.Output)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events lane blocked behind main lane")
	}

	close(release)
}

func TestPanicBecomesFailedOutcome(t *testing.T) {
	e := New()
	defer e.Stop()

	out := e.Submit(context.Background(), LaneMain, func(ctx context.Context) (string, error) {
		panic("turn exploded")
	})
	if out.Err == nil {
		t.Fatal("expected error from panicking turn")
	}

	// The lane worker must survive the panic
	out = e.Submit(context.Background(), LaneMain, func(ctx context.Context) (string, error) {
		return "still alive", nil
	})
	if out.Err != nil || out.Output != "still alive" {
		t.Errorf("lane did not survive panic: %+v", out)
	}
}

func TestUnknownLane(t *testing.T) {
	e := New()
	defer e.Stop()

	out := e.Submit(context.Background(), "nope", func(ctx context.Context) (string, error) {
		return "", nil
	})
	if out.Err == nil {
		t.Error("expected error for unknown lane")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	e := New()
	e.Stop()

	err := e.SubmitAsync(LaneMain, func(ctx context.Context) (string, error) {
		return "", nil
	}, nil)
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
