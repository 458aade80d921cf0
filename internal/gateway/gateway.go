// Package gateway serializes all storage access through a single worker
// goroutine that exclusively owns the database connection. Callers submit
// closures and receive futures; because exactly one worker executes jobs,
// every statement in the process is totally ordered and no two statements
// ever run concurrently.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned for work submitted after shutdown began.
	ErrClosed = errors.New("gateway closed")
	// ErrQueueFull is returned when the bounded job queue cannot accept
	// more work without blocking the caller.
	ErrQueueFull = errors.New("gateway queue full")
)

const defaultQueueSize = 64

// Job is one synchronous unit of work executed on the owned connection.
type Job func(db *sql.DB) (any, error)

// Result carries the outcome of one job.
type Result struct {
	Value any
	Err   error
}

type submission struct {
	ctx context.Context
	fn  Job
	out chan Result
}

// Gateway owns the storage connection and the worker that drains the queue.
type Gateway struct {
	db   *sql.DB
	jobs chan submission
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	closeErr error
}

// Open starts the worker. The gateway takes ownership of db: no other
// component may execute statements on it, and Close is the only place the
// connection is released.
func Open(db *sql.DB, queueSize int) *Gateway {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	g := &Gateway{
		db:   db,
		jobs: make(chan submission, queueSize),
		done: make(chan struct{}),
	}
	go g.run()
	return g
}

// Submit enqueues fn and returns a future resolving to its result. The
// call itself never blocks: a full queue fails fast with ErrQueueFull and
// a closed gateway with ErrClosed.
func (g *Gateway) Submit(ctx context.Context, fn Job) <-chan Result {
	out := make(chan Result, 1)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		out <- Result{Err: ErrClosed}
		return out
	}
	select {
	case g.jobs <- submission{ctx: ctx, fn: fn, out: out}:
		g.mu.Unlock()
	default:
		g.mu.Unlock()
		out <- Result{Err: ErrQueueFull}
	}
	return out
}

// Close drains every job already accepted, closes the connection exactly
// once and reports the connection's close error. Safe to call from any
// exit path; later calls wait for the first to finish.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.jobs)
	}
	g.mu.Unlock()
	<-g.done
	return g.closeErr
}

func (g *Gateway) run() {
	for sub := range g.jobs {
		sub.out <- g.exec(sub)
	}
	g.closeErr = g.db.Close()
	close(g.done)
}

// exec runs one job, isolating failures so a bad statement cannot poison
// the queue: errors and panics resolve the caller's future and the worker
// moves on.
func (g *Gateway) exec(sub submission) (res Result) {
	if sub.ctx != nil {
		if err := sub.ctx.Err(); err != nil {
			return Result{Err: err}
		}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("storage job panic: %v", r)}
		}
	}()
	v, err := sub.fn(g.db)
	return Result{Value: v, Err: err}
}

// Do submits fn and waits for its result, honoring ctx while waiting.
func Do[T any](ctx context.Context, g *Gateway, fn func(db *sql.DB) (T, error)) (T, error) {
	var zero T
	out := g.Submit(ctx, func(db *sql.DB) (any, error) {
		return fn(db)
	})
	select {
	case res := <-out:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Value.(T)
		if !ok && res.Value != nil {
			return zero, fmt.Errorf("gateway: unexpected result type %T", res.Value)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
