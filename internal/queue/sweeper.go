package queue

import (
	"math"
	"time"
)

// ─── Expiry sweeper ───────────────────────────────────────────────────────────

func (q *Queue[T]) startSweeper() {
	q.sweepWG.Add(1)
	go q.sweepLoop()
}

// sweepLoop waits twice the interval before the first sweep so that start-up
// work settles, then sweeps once per interval. The interval is re-read after
// every sweep, so a widened interval takes effect immediately.
func (q *Queue[T]) sweepLoop() {
	defer q.sweepWG.Done()
	timer := time.NewTimer(2 * q.SweepInterval())
	defer timer.Stop()
	for {
		select {
		case <-q.closed:
			return
		case <-timer.C:
			q.sweep()
			timer.Reset(q.SweepInterval())
		}
	}
}

// SweepInterval returns the sweeper's current period.
func (q *Queue[T]) SweepInterval() time.Duration {
	return time.Duration(q.sweepInterval.Load())
}

// sweep expires every lease that ran out more than leaseGrace ago and
// returns the items it moved to the redelivery queue, in order.
//
// Each selected lease is marked expiring under the lock. Then, one item at a
// time, its timeout notification fires with the lock released, and the item
// is moved to the redelivery queue. A Take therefore never hands out an item
// before its timeout notification has run.
func (q *Queue[T]) sweep() []Item[T] {
	start := q.now()

	q.mu.Lock()
	if q.isClosed() {
		q.mu.Unlock()
		return nil
	}
	expired := q.locks.expired(start, leaseGrace)
	for _, rec := range expired {
		rec.Expiring = true
		q.locks.put(rec)
	}
	q.mu.Unlock()

	moved := make([]Item[T], 0, len(expired))
	for _, rec := range expired {
		if q.metrics != nil {
			q.metrics.TimedOut.Inc(q.name)
		}
		q.log.Info("lease expired, item requeued for redelivery", "item_id", rec.ItemID)
		q.events.fireTimeout(rec.Item)
		if q.requeue(rec.ItemID) {
			moved = append(moved, rec.Item)
		}
	}

	elapsed := q.now().Sub(start)
	if q.metrics != nil {
		q.metrics.Sweeps.Inc(q.name)
		q.metrics.SweepDurMs.Add(q.name, elapsed.Milliseconds())
	}
	q.adjustInterval(elapsed)
	return moved
}

// requeue moves an expiring lease to the redelivery queue. It reports false
// if Close emptied the lock table in the meantime.
func (q *Queue[T]) requeue(itemID string) bool {
	q.mu.Lock()
	rec, ok := q.locks.get(itemID)
	if !ok || !rec.Expiring || q.isClosed() {
		q.mu.Unlock()
		return false
	}
	q.redelivery.push(rec.Item)
	q.locks.remove(itemID)
	q.mu.Unlock()

	signal(q.avail)
	return true
}

// adjustInterval widens the sweep interval to the elapsed time rounded up to
// the next whole second plus one second, whenever a sweep outlasts it.
func (q *Queue[T]) adjustInterval(elapsed time.Duration) {
	current := q.SweepInterval()
	if elapsed <= current {
		return
	}
	secs := int64(math.Ceil(elapsed.Seconds())) + 1
	next := time.Duration(secs) * time.Second
	q.sweepInterval.Store(int64(next))

	if q.metrics != nil {
		q.metrics.SweepOverruns.Inc(q.name)
	}
	q.log.Warn("expiry sweep overran its interval, widening",
		"duration_ms", elapsed.Milliseconds(),
		"old_interval_seconds", int64(current/time.Second),
		"new_interval_seconds", secs,
	)
}
