package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestGateway(t *testing.T, queueSize int) *Gateway {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE entries (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	g := Open(db, queueSize)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestSubmissionOrderIsExecutionOrder(t *testing.T) {
	const n = 100
	g := newTestGateway(t, n+1)
	ctx := context.Background()

	futures := make([]<-chan Result, 0, n)
	for i := 0; i < n; i++ {
		label := fmt.Sprintf("op-%03d", i)
		futures = append(futures, g.Submit(ctx, func(db *sql.DB) (any, error) {
			return db.Exec(`INSERT INTO entries (label) VALUES (?)`, label)
		}))
	}
	for i, fut := range futures {
		if res := <-fut; res.Err != nil {
			t.Fatalf("op %d failed: %v", i, res.Err)
		}
	}

	labels, err := Do(ctx, g, func(db *sql.DB) ([]string, error) {
		rows, err := db.Query(`SELECT label FROM entries ORDER BY id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []string
		for rows.Next() {
			var l string
			if err := rows.Scan(&l); err != nil {
				return nil, err
			}
			out = append(out, l)
		}
		return out, rows.Err()
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(labels) != n {
		t.Fatalf("expected %d rows, got %d", n, len(labels))
	}
	for i, l := range labels {
		if want := fmt.Sprintf("op-%03d", i); l != want {
			t.Fatalf("row %d out of order: got %s want %s", i, l, want)
		}
	}
}

func TestFailedJobDoesNotPoisonWorker(t *testing.T) {
	g := newTestGateway(t, 8)
	ctx := context.Background()

	wantErr := errors.New("statement exploded")
	if _, err := Do(ctx, g, func(db *sql.DB) (any, error) {
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected job error surfaced, got %v", err)
	}

	// Constraint violations must propagate too, not retry.
	if _, err := Do(ctx, g, func(db *sql.DB) (any, error) {
		return db.Exec(`INSERT INTO no_such_table (x) VALUES (1)`)
	}); err == nil {
		t.Fatalf("expected sqlite error for missing table")
	}

	got, err := Do(ctx, g, func(db *sql.DB) (string, error) {
		return "alive", nil
	})
	if err != nil || got != "alive" {
		t.Fatalf("worker did not survive failed jobs: %q, %v", got, err)
	}
}

func TestPanickingJobDoesNotPoisonWorker(t *testing.T) {
	g := newTestGateway(t, 8)
	ctx := context.Background()

	res := <-g.Submit(ctx, func(db *sql.DB) (any, error) {
		panic("boom")
	})
	if res.Err == nil {
		t.Fatalf("expected panic converted to error")
	}

	if _, err := Do(ctx, g, func(db *sql.DB) (int, error) {
		return 1, nil
	}); err != nil {
		t.Fatalf("worker did not survive panic: %v", err)
	}
}

func TestQueueFullFailsFast(t *testing.T) {
	g := newTestGateway(t, 1)
	ctx := context.Background()

	block := make(chan struct{})
	first := g.Submit(ctx, func(db *sql.DB) (any, error) {
		<-block
		return nil, nil
	})
	// Queue up the single buffered slot, then overflow it.
	second := g.Submit(ctx, func(db *sql.DB) (any, error) { return nil, nil })

	var sawFull bool
	for i := 0; i < 10; i++ {
		res := <-g.Submit(ctx, func(db *sql.DB) (any, error) { return nil, nil })
		if errors.Is(res.Err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	close(block)
	<-first
	<-second
	if !sawFull {
		t.Fatalf("expected ErrQueueFull while worker was blocked")
	}
}

func TestCloseDrainsAndRejectsLateWork(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE entries (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	g := Open(db, 16)
	ctx := context.Background()

	futures := make([]<-chan Result, 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, g.Submit(ctx, func(db *sql.DB) (any, error) {
			return db.Exec(`INSERT INTO entries (label) VALUES ('queued')`)
		}))
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Everything accepted before Close must have run.
	for i, fut := range futures {
		if res := <-fut; res.Err != nil {
			t.Fatalf("queued op %d lost on shutdown: %v", i, res.Err)
		}
	}

	res := <-g.Submit(ctx, func(db *sql.DB) (any, error) { return nil, nil })
	if !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", res.Err)
	}

	// Second close is a no-op, not a second connection close.
	if err := g.Close(); err != nil {
		t.Fatalf("repeated close: %v", err)
	}
}

func TestDoHonorsContext(t *testing.T) {
	g := newTestGateway(t, 4)

	block := make(chan struct{})
	defer close(block)
	g.Submit(context.Background(), func(db *sql.DB) (any, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := Do(ctx, g, func(db *sql.DB) (any, error) {
		return nil, nil
	}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
