package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/snehjoshi/leaseq/internal/id"
	"github.com/snehjoshi/leaseq/internal/queue"
)

// lockedWriter serialises writes from the reader loop and the sweeper
// goroutine, which prints timeouts.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// worker drives a string queue the way a real consumer would: take with a
// lease, do the work, confirm. Work that is "skipped" is left unconfirmed so
// its lease runs out and the item comes back through redelivery.
type worker struct {
	q     *queue.Queue[string]
	out   io.Writer
	lease int
	skip  func() bool
}

func newWorker(q *queue.Queue[string], out io.Writer, lease, skipOneIn int) *worker {
	return &worker{
		q:     q,
		out:   &lockedWriter{w: out},
		lease: lease,
		skip:  oneIn(skipOneIn),
	}
}

// oneIn returns a predicate that is true roughly once every n calls; n
// <= 0 never skips.
func oneIn(n int) func() bool {
	if n <= 0 {
		return func() bool { return false }
	}
	return func() bool { return rand.IntN(n) == 0 }
}

func (w *worker) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

func tick() string {
	return fmt.Sprintf("TICK-%d", time.Now().UnixNano())
}

// fill adds n fresh items.
func (w *worker) fill(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		itemID, err := id.New()
		if err != nil {
			return err
		}
		if err := w.q.Add(ctx, queue.Item[string]{ID: itemID, Data: tick()}); err != nil {
			return err
		}
	}
	return nil
}

// produce adds one item every interval until ctx is done.
func (w *worker) produce(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := w.fill(ctx, 1); err != nil {
				return stopped(err)
			}
		}
	}
}

// consume takes and processes items until ctx is done or the queue closes.
func (w *worker) consume(ctx context.Context) error {
	for {
		it, err := w.q.Take(ctx, w.lease)
		if err != nil {
			return stopped(err)
		}
		w.printf("Took item %s %s\n", it.ID, it.Data)
		if w.skip() {
			w.printf("Skipping item %s %s\n", it.ID, it.Data)
			continue
		}
		w.q.ConfirmTake(it.ID)
		w.printf("Confirmed item %s %s\n", it.ID, it.Data)
	}
}

// stopped maps the errors of a deliberate shutdown to nil.
func stopped(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}
