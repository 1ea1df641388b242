// Package types contains the core domain types shared across all LeaseQ
// internal packages. It deliberately has zero imports of other LeaseQ packages
// so that the queue engine, the snapshot archive and the transports can all
// import from it without creating import cycles.
package types

import "time"

// Status is the position of an item inside a queue.
type Status uint8

const (
	// StatusReady means the item sits in the primary queue and has never been
	// leased.
	StatusReady Status = iota
	// StatusRedelivery means the item's lease expired before it was confirmed
	// and it is waiting in the redelivery queue to be taken again.
	StatusRedelivery
	// StatusLeased means a consumer holds the item and must confirm it before
	// the lease expires.
	StatusLeased
	// StatusConfirmed means the consumer confirmed the item. It is gone from
	// every container.
	StatusConfirmed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRedelivery:
		return "redelivery"
	case StatusLeased:
		return "leased"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Item is the unit of work carried by a queue.
//
// Items are immutable by convention: the queue never modifies ID, Data or
// ScheduledTimeout, and callers should not either once the item is added.
type Item[T any] struct {
	// ID uniquely identifies the item among everything currently held by the
	// queue. Producers assign it; id.New() is the usual source.
	ID string `json:"id"`

	// Data is the caller-owned payload.
	Data T `json:"data"`

	// ScheduledTimeout is carried for callers that track their own deadlines.
	// No queue operation reads or writes it.
	ScheduledTimeout *time.Time `json:"scheduled_timeout,omitempty"`
}

// Dump is a point-in-time copy of every container of one queue.
type Dump[T any] struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TakenAt      time.Time `json:"taken_at"`
	MainQueue    []Item[T] `json:"main_queue"`
	TimeoutQueue []Item[T] `json:"timeout_queue"`
	LockList     []Item[T] `json:"lock_list"`
}

// Total returns the number of items held across all three containers.
func (d *Dump[T]) Total() int {
	return len(d.MainQueue) + len(d.TimeoutQueue) + len(d.LockList)
}
