// Package persistence decouples the trading path from storage failures. A
// write that fails is queued and retried in the background instead of
// blocking or aborting the trade that produced it; in-memory state is the
// source of truth and storage catches up.
package persistence

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tradepilot/internal/events"
)

// Op is a deferred storage write. Name identifies it in logs and error
// events.
type Op struct {
	Name     string
	Do       func(ctx context.Context) error
	Attempts int
}

// Metrics counts queue activity.
type Metrics struct {
	TotalOps     uint64 `json:"total_ops"`
	TotalRetries uint64 `json:"total_retries"`
	TotalDropped uint64 `json:"total_dropped"`
}

// RetryQueue runs storage writes, parking failures for periodic retry.
type RetryQueue struct {
	mu          sync.Mutex
	pending     []Op
	interval    time.Duration
	maxAttempts int
	bus         *events.Bus

	done chan struct{}
	wg   sync.WaitGroup

	totalOps     atomic.Uint64
	totalRetries atomic.Uint64
	totalDropped atomic.Uint64
}

// NewRetryQueue creates a queue flushing every interval. Ops are dropped
// after maxAttempts failures; both arguments fall back to sane defaults.
func NewRetryQueue(interval time.Duration, maxAttempts int, bus *events.Bus) *RetryQueue {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &RetryQueue{
		interval:    interval,
		maxAttempts: maxAttempts,
		bus:         bus,
		done:        make(chan struct{}),
	}
}

// Start launches the background retry loop.
func (q *RetryQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.flush(ctx)
			case <-ctx.Done():
				return
			case <-q.done:
				return
			}
		}
	}()
}

// Stop halts the retry loop after a final flush attempt.
func (q *RetryQueue) Stop() {
	close(q.done)
	q.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.flush(ctx)
}

// Run executes the op immediately, queueing it for retry on failure. The
// caller's flow continues either way.
func (q *RetryQueue) Run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	q.totalOps.Add(1)
	err := fn(ctx)
	if err == nil {
		return
	}
	log.Printf("persistence: %s failed, queued for retry: %v", name, err)
	q.reportError(name, err)

	q.mu.Lock()
	q.pending = append(q.pending, Op{Name: name, Do: fn, Attempts: 1})
	q.mu.Unlock()
}

// Pending returns the number of ops awaiting retry.
func (q *RetryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Snapshot returns queue counters.
func (q *RetryQueue) Snapshot() Metrics {
	return Metrics{
		TotalOps:     q.totalOps.Load(),
		TotalRetries: q.totalRetries.Load(),
		TotalDropped: q.totalDropped.Load(),
	}
}

// flush retries every pending op once, keeping the ones that fail again.
func (q *RetryQueue) flush(ctx context.Context) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var still []Op
	for _, op := range batch {
		q.totalRetries.Add(1)
		err := op.Do(ctx)
		if err == nil {
			continue
		}
		op.Attempts++
		if op.Attempts >= q.maxAttempts {
			q.totalDropped.Add(1)
			log.Printf("persistence: dropping %s after %d attempts: %v", op.Name, op.Attempts, err)
			q.reportError(op.Name, err)
			continue
		}
		still = append(still, op)
	}

	if len(still) > 0 {
		q.mu.Lock()
		q.pending = append(still, q.pending...)
		q.mu.Unlock()
	}
}

func (q *RetryQueue) reportError(name string, err error) {
	if q.bus != nil {
		q.bus.Publish(events.EventEngineError, name+": "+err.Error())
	}
}
