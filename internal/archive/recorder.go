package archive

import (
	"log/slog"
	"sync"
	"time"

	"github.com/snehjoshi/leaseq/internal/queue"
)

type trigger struct {
	q      queue.Inspector
	reason string
}

// Recorder snapshots every queue in a Registry on a fixed interval, and
// additionally whenever an observed queue reports a timeout or drains.
//
// Event-driven snapshots are handed to the recorder goroutine through a
// buffered channel; when it is full the trigger is dropped and the next
// interval snapshot covers it.
type Recorder struct {
	store    *Store
	reg      *queue.Registry
	interval time.Duration
	retain   int
	log      *slog.Logger

	triggers chan trigger

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRecorder creates a Recorder. retain is the number of snapshots kept per
// queue after each write; 0 keeps everything.
func NewRecorder(store *Store, reg *queue.Registry, interval time.Duration, retain int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		reg:      reg,
		interval: interval,
		retain:   retain,
		log:      logger.With("component", "archive"),
		triggers: make(chan trigger, 64),
		done:     make(chan struct{}),
	}
}

// Start launches the background goroutine. It returns immediately.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				r.RunOnce("interval")
			case t := <-r.triggers:
				r.record(t.q, t.reason)
			}
		}
	}()
}

// Stop signals the background goroutine to exit and waits for it. Pending
// triggers are discarded.
func (r *Recorder) Stop() {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Observe subscribes to q's notifications so that each timeout and each
// drain produces a snapshot. The returned func unsubscribes.
func (r *Recorder) Observe(q queue.Inspector) (cancel func()) {
	return q.Watch(func(e queue.Event) {
		select {
		case r.triggers <- trigger{q: q, reason: string(e.Type)}:
		default:
			r.log.Debug("snapshot trigger dropped", "queue", q.Name(), "reason", e.Type)
		}
	})
}

// RunOnce snapshots every registered queue and returns how many snapshots
// were written. Errors are logged and do not stop the pass.
func (r *Recorder) RunOnce(reason string) int {
	written := 0
	for _, name := range r.reg.List() {
		q, err := r.reg.Get(name)
		if err != nil {
			continue // removed since List
		}
		if r.record(q, reason) {
			written++
		}
	}
	return written
}

func (r *Recorder) record(q queue.Inspector, reason string) bool {
	rec, err := r.store.Snapshot(q, reason)
	if err != nil {
		r.log.Error("snapshot failed", "queue", q.Name(), "error", err)
		return false
	}
	if n, err := r.store.Prune(q.Name(), r.retain); err != nil {
		r.log.Warn("prune failed", "queue", q.Name(), "error", err)
	} else if n > 0 {
		r.log.Debug("pruned snapshots", "queue", q.Name(), "removed", n)
	}
	r.log.Debug("snapshot recorded",
		"queue", q.Name(),
		"snapshot_id", rec.ID,
		"reason", reason,
		"length", rec.Stats.Length,
		"locked", rec.Stats.Locked,
	)
	return true
}
