package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snehjoshi/leaseq/internal/id"
	"github.com/snehjoshi/leaseq/internal/metrics"
)

// ErrClosed is returned by blocking operations once the queue has been closed.
var ErrClosed = errors.New("queue: closed")

// MaxLeaseMinutesLimit is the largest lease, in minutes, that still fits in a
// time.Duration. Config.MaxLeaseMinutes above it is lowered to it.
const MaxLeaseMinutesLimit = int(math.MaxInt64 / int64(time.Minute))

// ─── Per-queue config ─────────────────────────────────────────────────────────

// Config holds tunable parameters for a single queue instance.
// Zero values are replaced by DefaultConfig values in New.
type Config struct {
	// MaxLeaseMinutes is the ceiling on a lease. Requests outside
	// [1, MaxLeaseMinutes] are clamped to MaxLeaseMinutes.
	MaxLeaseMinutes int

	// SweepIntervalSeconds is the starting period of the expiry sweeper. It
	// only ever grows, when a sweep outlasts it.
	SweepIntervalSeconds int

	// MaxItems bounds the primary queue. 0 = unbounded.
	MaxItems int
}

// DefaultConfig returns a Config with the stock defaults.
func DefaultConfig() Config {
	return Config{
		MaxLeaseMinutes:      20,
		SweepIntervalSeconds: 4,
		MaxItems:             0,
	}
}

// ─── Options ──────────────────────────────────────────────────────────────────

type options struct {
	logger  *slog.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option is a functional option for New.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches a metrics.Registry so that every add, take, confirm,
// refresh, timeout and sweep increments the relevant counter.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithClock replaces time.Now for lease arithmetic and sweep timing.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// ─── Stats ────────────────────────────────────────────────────────────────────

// Stats is a consistent snapshot of a queue's counters.
type Stats struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Length               int    `json:"length"` // ready + redelivery
	Ready                int    `json:"ready"`
	Redelivery           int    `json:"redelivery"`
	Locked               int    `json:"locked"`
	MaxLeaseMinutes      int    `json:"max_lease_minutes"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
	Closed               bool   `json:"closed"`
}

// ─── Queue ────────────────────────────────────────────────────────────────────

// Queue is the heart of LeaseQ: an in-memory FIFO work queue whose consumers
// lease items and must confirm them before the lease runs out.
//
// Architecture:
//   - "primary" holds items that have never been leased; "redelivery" holds
//     items whose lease expired. Take always drains redelivery first.
//   - "locks" maps item id → lease record for every leased, unconfirmed item.
//     It is guarded by mu, which also serialises the move of an item from a
//     ready list into the lock table, so an id is never in two containers.
//   - The background sweeper fires a timeout notification per expired lease
//     and then moves the item to redelivery.
//
// All public methods are safe for concurrent use.
type Queue[T any] struct {
	id      string
	name    string
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Registry
	now     func() time.Time

	mu         sync.Mutex
	primary    *fifo[T]
	redelivery *fifo[T]
	locks      *lockTable[T]

	// avail and space are capacity-1 wake-up signals. A send never blocks:
	// if a signal is already pending, the waiter will wake soon anyway.
	avail chan struct{}
	space chan struct{}

	events notifier[T]

	sweepInterval atomic.Int64 // nanoseconds
	sweepWG       sync.WaitGroup

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Queue and starts its expiry sweeper.
//
// queueID may be empty, in which case a fresh ULID is assigned. name is the
// display name and must not be empty.
//
// Call Close() when the queue is no longer needed.
func New[T any](queueID, name string, cfg Config, opts ...Option) (*Queue[T], error) {
	if name == "" {
		return nil, errors.New("queue: name must not be empty")
	}
	if queueID == "" {
		var err error
		if queueID, err = id.New(); err != nil {
			return nil, fmt.Errorf("queue %s: generate id: %w", name, err)
		}
	}

	def := DefaultConfig()
	if cfg.MaxLeaseMinutes <= 0 {
		cfg.MaxLeaseMinutes = def.MaxLeaseMinutes
	}
	if cfg.MaxLeaseMinutes > MaxLeaseMinutesLimit {
		cfg.MaxLeaseMinutes = MaxLeaseMinutesLimit
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = def.SweepIntervalSeconds
	}
	if cfg.MaxItems < 0 {
		cfg.MaxItems = 0
	}

	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		id:         queueID,
		name:       name,
		cfg:        cfg,
		log:        o.logger.With("queue", name, "queue_id", queueID),
		metrics:    o.metrics,
		now:        o.now,
		primary:    newFIFO[T](cfg.MaxItems),
		redelivery: newFIFO[T](0),
		locks:      newLockTable[T](),
		avail:      make(chan struct{}, 1),
		space:      make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	q.sweepInterval.Store(int64(time.Duration(cfg.SweepIntervalSeconds) * time.Second))

	q.startSweeper()
	q.log.Info("queue started",
		"max_lease_minutes", cfg.MaxLeaseMinutes,
		"sweep_interval_seconds", cfg.SweepIntervalSeconds,
		"max_items", cfg.MaxItems,
	)
	return q, nil
}

// ID returns the queue's unique identifier.
func (q *Queue[T]) ID() string { return q.id }

// Name returns the queue's display name.
func (q *Queue[T]) Name() string { return q.name }

// MaxLeaseMinutes returns the configured lease ceiling.
func (q *Queue[T]) MaxLeaseMinutes() int { return q.cfg.MaxLeaseMinutes }

// ─── Add ─────────────────────────────────────────────────────────────────────

// Add appends item to the primary queue.
//
// With the default unbounded store Add never blocks. When Config.MaxItems is
// set and the primary queue is full, Add waits for space, ctx, or Close.
func (q *Queue[T]) Add(ctx context.Context, item Item[T]) error {
	for {
		pushed, err := q.push(item)
		if err != nil {
			return err
		}
		if pushed {
			q.afterAdd()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return ErrClosed
		case <-q.space:
		}
	}
}

// TryAdd appends item without blocking and reports whether it was accepted.
// It fails only when the primary queue is at capacity or the queue is closed.
func (q *Queue[T]) TryAdd(item Item[T]) bool {
	if pushed, _ := q.push(item); !pushed {
		return false
	}
	q.afterAdd()
	return true
}

// push appends item to the primary queue unless it is full. The closed check
// and the append share Queue.mu with Close, so nothing lands in a queue that
// Close has already cleared.
func (q *Queue[T]) push(item Item[T]) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isClosed() {
		return false, ErrClosed
	}
	return q.primary.tryPush(item), nil
}

// AddAll adds each item in order. It is not atomic: consumers may take the
// first items before the last ones are added. On error, items before the
// failing index have been added.
func (q *Queue[T]) AddAll(ctx context.Context, items []Item[T]) error {
	for i, it := range items {
		if err := q.Add(ctx, it); err != nil {
			return fmt.Errorf("queue %s: add all: item %d: %w", q.name, i, err)
		}
	}
	return nil
}

func (q *Queue[T]) afterAdd() {
	if q.metrics != nil {
		q.metrics.Added.Inc(q.name)
	}
	signal(q.avail)
	// Pass the space signal on to the next blocked producer, if any.
	if !q.primary.full() {
		signal(q.space)
	}
}

// ─── Take ────────────────────────────────────────────────────────────────────

// Take leases one item for leaseMinutes, waiting until one is available.
//
// leaseMinutes outside [1, MaxLeaseMinutes] is clamped to MaxLeaseMinutes,
// so Take(0) gets the longest lease, not the shortest.
//
// Items in the redelivery queue are always handed out before fresh items.
// The returned item stays invisible to other Take calls until ConfirmTake or
// until the lease plus a one-second grace expires.
//
// Take returns ctx.Err() if ctx is done first, and ErrClosed if the queue is
// closed while waiting.
func (q *Queue[T]) Take(ctx context.Context, leaseMinutes int) (Item[T], error) {
	lease := q.leaseDuration(leaseMinutes)
	for {
		it, ok, err := q.tryTake(lease)
		if err != nil || ok {
			return it, err
		}
		select {
		case <-ctx.Done():
			var zero Item[T]
			return zero, ctx.Err()
		case <-q.closed:
			var zero Item[T]
			return zero, ErrClosed
		case <-q.avail:
		}
	}
}

// TryTake is the non-blocking form of Take. ok is false when both ready
// queues are empty or the queue is closed.
func (q *Queue[T]) TryTake(leaseMinutes int) (it Item[T], ok bool) {
	it, ok, _ = q.tryTake(q.leaseDuration(leaseMinutes))
	return it, ok
}

// tryTake pops one item (redelivery first) and leases it in a single critical
// section.
func (q *Queue[T]) tryTake(lease time.Duration) (Item[T], bool, error) {
	var zero Item[T]

	q.mu.Lock()
	if q.isClosed() {
		q.mu.Unlock()
		return zero, false, ErrClosed
	}
	from := StatusRedelivery
	it, ok := q.redelivery.tryPop()
	if !ok {
		from = StatusReady
		it, ok = q.primary.tryPop()
	}
	if !ok {
		q.mu.Unlock()
		return zero, false, nil
	}
	q.locks.put(leaseRecord[T]{
		ItemID:    it.ID,
		ExpiresAt: q.now().Add(lease),
		Item:      it,
	})
	more := q.redelivery.len()+q.primary.len() > 0
	q.mu.Unlock()

	if more {
		signal(q.avail)
	}
	if from == StatusReady {
		signal(q.space)
	}
	if q.metrics != nil {
		q.metrics.Taken.Inc(q.name)
		if from == StatusRedelivery {
			q.metrics.Redelivered.Inc(q.name)
		}
	}
	return it, true, nil
}

// ─── Confirm / refresh ───────────────────────────────────────────────────────

// ConfirmTake ends the lease on itemID and discards the item.
//
// It returns false if itemID is not currently leased: never taken, already
// confirmed, or already expired, which includes a lease the sweeper is
// expiring. Whether or not the id was found, if the queue is left with
// nothing ready, redelivering or leased, a completion notification fires on
// the calling goroutine.
func (q *Queue[T]) ConfirmTake(itemID string) bool {
	q.mu.Lock()
	if q.isClosed() {
		q.mu.Unlock()
		return false
	}
	rec, ok := q.locks.get(itemID)
	ok = ok && !rec.Expiring
	if ok {
		q.locks.remove(itemID)
	}
	drained := q.primary.len() == 0 && q.redelivery.len() == 0 && q.locks.len() == 0
	q.mu.Unlock()

	if q.metrics != nil && ok {
		q.metrics.Confirmed.Inc(q.name)
	}
	if drained {
		if q.metrics != nil {
			q.metrics.Completions.Inc(q.name)
		}
		q.log.Debug("queue drained")
		q.events.fireComplete()
	}
	return ok
}

// RefreshLock extends the lease on itemID by leaseMinutes (clamped like
// Take). The extension is added to the current deadline, not to now, so
// refreshing early never shortens a lease.
//
// It returns false if itemID is not currently leased.
func (q *Queue[T]) RefreshLock(itemID string, leaseMinutes int) bool {
	lease := q.leaseDuration(leaseMinutes)

	q.mu.Lock()
	rec, ok := q.locks.get(itemID)
	if !ok || rec.Expiring {
		q.mu.Unlock()
		return false
	}
	base := rec.ExpiresAt
	if base.IsZero() {
		base = q.now()
	}
	q.locks.put(leaseRecord[T]{
		ItemID:    rec.ItemID,
		ExpiresAt: base.Add(lease),
		Item:      rec.Item,
	})
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.Refreshed.Inc(q.name)
	}
	return true
}

// ─── Notifications ───────────────────────────────────────────────────────────

// OnComplete registers fn to run every time the queue fully drains. fn runs
// on the goroutine that called ConfirmTake. The returned func unsubscribes.
func (q *Queue[T]) OnComplete(fn func()) (cancel func()) {
	return q.events.onComplete(fn)
}

// OnItemTimeout registers fn to run for every item whose lease expired. fn
// runs on the sweeper goroutine before the item is moved to the redelivery
// queue, so no Take can receive the item until fn returns. While fn runs the
// item still counts as locked but can no longer be confirmed or refreshed.
// Slow subscribers delay the next sweep.
func (q *Queue[T]) OnItemTimeout(fn func(Item[T])) (cancel func()) {
	return q.events.onTimeout(fn)
}

// Watch delivers both notification kinds as Events.
func (q *Queue[T]) Watch(fn func(Event)) (cancel func()) {
	c1 := q.events.onComplete(func() {
		fn(Event{Type: EventComplete, QueueID: q.id, Queue: q.name, At: q.now()})
	})
	c2 := q.events.onTimeout(func(it Item[T]) {
		fn(Event{Type: EventTimeout, QueueID: q.id, Queue: q.name, ItemID: it.ID, Item: it, At: q.now()})
	})
	return func() {
		c1()
		c2()
	}
}

// ─── Introspection ───────────────────────────────────────────────────────────

// Len returns the number of items waiting to be taken (primary + redelivery).
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.primary.len() + q.redelivery.len()
}

// LockedCount returns the number of leased, unconfirmed items.
func (q *Queue[T]) LockedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.locks.len()
}

// TimeoutQueueLength returns the number of items waiting for redelivery.
func (q *Queue[T]) TimeoutQueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.redelivery.len()
}

// Stats returns every counter from one consistent view.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	ready := q.primary.len()
	redelivery := q.redelivery.len()
	locked := q.locks.len()
	q.mu.Unlock()

	return Stats{
		ID:                   q.id,
		Name:                 q.name,
		Length:               ready + redelivery,
		Ready:                ready,
		Redelivery:           redelivery,
		Locked:               locked,
		MaxLeaseMinutes:      q.cfg.MaxLeaseMinutes,
		SweepIntervalSeconds: int(q.SweepInterval() / time.Second),
		Closed:               q.isClosed(),
	}
}

// DumpQueue returns a copy of the primary queue, head first.
func (q *Queue[T]) DumpQueue() []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.primary.snapshot()
}

// DumpTimeoutQueue returns a copy of the redelivery queue, head first.
func (q *Queue[T]) DumpTimeoutQueue() []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.redelivery.snapshot()
}

// DumpLockList returns the leased items, soonest expiry first.
func (q *Queue[T]) DumpLockList() []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.locks.items()
}

// DumpAll returns all three containers from a single consistent view.
func (q *Queue[T]) DumpAll() Dump[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Dump[T]{
		ID:           q.id,
		Name:         q.name,
		TakenAt:      q.now(),
		MainQueue:    q.primary.snapshot(),
		TimeoutQueue: q.redelivery.snapshot(),
		LockList:     q.locks.items(),
	}
}

// ─── Close ───────────────────────────────────────────────────────────────────

// Close stops the sweeper, drops every item and wakes blocked Add and Take
// callers with ErrClosed. It is safe to call more than once.
//
// Close must not be called from an OnItemTimeout subscriber: it waits for the
// sweeper goroutine, which is the one running that subscriber.
func (q *Queue[T]) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.closed)
		locked := q.locks.clear()
		ready := q.primary.clear()
		redelivery := q.redelivery.clear()
		q.mu.Unlock()

		q.sweepWG.Wait()
		q.events.reset()

		q.log.Info("queue closed",
			"dropped_ready", ready,
			"dropped_redelivery", redelivery,
			"dropped_locked", locked,
		)
	})
	return nil
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// leaseDuration clamps leaseMinutes to the configured maximum. Values below
// one minute are clamped up to the maximum as well.
func (q *Queue[T]) leaseDuration(leaseMinutes int) time.Duration {
	if leaseMinutes < 1 || leaseMinutes > q.cfg.MaxLeaseMinutes {
		leaseMinutes = q.cfg.MaxLeaseMinutes
	}
	return time.Duration(leaseMinutes) * time.Minute
}

// signal performs a non-blocking send on a capacity-1 wake channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
