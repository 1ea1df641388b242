package queue

import (
	"sort"
	"time"
)

// leaseGrace is added to every expiry before the sweeper treats a lease as
// stale, absorbing timer and clock jitter.
const leaseGrace = time.Second

// leaseRecord ties a checked-out item to the instant its lease runs out.
type leaseRecord[T any] struct {
	ItemID    string
	ExpiresAt time.Time
	Item      Item[T]
	// Expiring is set once the sweeper has selected the lease. The record
	// stays in the table while the timeout notification runs, but it can no
	// longer be confirmed or refreshed.
	Expiring bool
}

// lockTable holds every leased-but-unconfirmed item keyed by item id.
//
// It has no lock of its own: every access goes through Queue.mu.
type lockTable[T any] struct {
	records map[string]leaseRecord[T]
}

func newLockTable[T any]() *lockTable[T] {
	return &lockTable[T]{records: make(map[string]leaseRecord[T])}
}

// put inserts or replaces the record for rec.ItemID.
func (lt *lockTable[T]) put(rec leaseRecord[T]) {
	lt.records[rec.ItemID] = rec
}

func (lt *lockTable[T]) get(itemID string) (leaseRecord[T], bool) {
	rec, ok := lt.records[itemID]
	return rec, ok
}

func (lt *lockTable[T]) remove(itemID string) (leaseRecord[T], bool) {
	rec, ok := lt.records[itemID]
	if ok {
		delete(lt.records, itemID)
	}
	return rec, ok
}

func (lt *lockTable[T]) len() int { return len(lt.records) }

// expired returns every record not already expiring whose expiry plus grace
// is strictly before now, ordered by expiry then item id.
func (lt *lockTable[T]) expired(now time.Time, grace time.Duration) []leaseRecord[T] {
	var out []leaseRecord[T]
	for _, rec := range lt.records {
		if rec.ExpiresAt.IsZero() || rec.Expiring {
			continue
		}
		if rec.ExpiresAt.Add(grace).Before(now) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out
}

// items returns the leased items ordered by expiry then item id.
func (lt *lockTable[T]) items() []Item[T] {
	recs := make([]leaseRecord[T], 0, len(lt.records))
	for _, rec := range lt.records {
		recs = append(recs, rec)
	}
	sortRecords(recs)
	out := make([]Item[T], len(recs))
	for i, rec := range recs {
		out[i] = rec.Item
	}
	return out
}

func (lt *lockTable[T]) clear() int {
	n := len(lt.records)
	lt.records = make(map[string]leaseRecord[T])
	return n
}

func sortRecords[T any](recs []leaseRecord[T]) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].ExpiresAt.Equal(recs[j].ExpiresAt) {
			return recs[i].ExpiresAt.Before(recs[j].ExpiresAt)
		}
		return recs[i].ItemID < recs[j].ItemID
	})
}
