package persistence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tradepilot/internal/events"
)

func TestRunSucceedsImmediately(t *testing.T) {
	q := NewRetryQueue(time.Hour, 3, nil)

	var calls int
	q.Run(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if q.Pending() != 0 {
		t.Errorf("pending = %d, want 0", q.Pending())
	}
}

func TestFailureQueuedAndRetried(t *testing.T) {
	q := NewRetryQueue(time.Hour, 10, nil)

	var calls atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	op := func(context.Context) error {
		calls.Add(1)
		if fail.Load() {
			return errors.New("db locked")
		}
		return nil
	}

	q.Run(context.Background(), "op", op)
	if q.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", q.Pending())
	}

	// Storage still down: the op stays queued.
	q.flush(context.Background())
	if q.Pending() != 1 {
		t.Errorf("pending after failed flush = %d, want 1", q.Pending())
	}

	// Storage back: the op drains.
	fail.Store(false)
	q.flush(context.Background())
	if q.Pending() != 0 {
		t.Errorf("pending after recovery = %d, want 0", q.Pending())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDropAfterMaxAttempts(t *testing.T) {
	q := NewRetryQueue(time.Hour, 3, nil)

	q.Run(context.Background(), "op", func(context.Context) error {
		return errors.New("permanent failure")
	})

	for i := 0; i < 5; i++ {
		q.flush(context.Background())
	}

	if q.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after drop", q.Pending())
	}
	m := q.Snapshot()
	if m.TotalDropped != 1 {
		t.Errorf("dropped = %d, want 1", m.TotalDropped)
	}
}

func TestErrorsSurfaceOnBus(t *testing.T) {
	bus := events.NewBus()
	errs, unsub := bus.Subscribe(events.EventEngineError, 10)
	defer unsub()

	q := NewRetryQueue(time.Hour, 3, bus)
	q.Run(context.Background(), "save trade", func(context.Context) error {
		return errors.New("disk full")
	})

	select {
	case msg := <-errs:
		s, ok := msg.(string)
		if !ok || s == "" {
			t.Errorf("error payload = %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no error event published")
	}
}

func TestBackgroundFlushLoop(t *testing.T) {
	q := NewRetryQueue(10*time.Millisecond, 10, nil)

	var healed atomic.Bool
	q.Run(context.Background(), "op", func(context.Context) error {
		if healed.Load() {
			return nil
		}
		return errors.New("transient")
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	healed.Store(true)

	deadline := time.After(2 * time.Second)
	for q.Pending() != 0 {
		select {
		case <-deadline:
			t.Fatal("op never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
}
