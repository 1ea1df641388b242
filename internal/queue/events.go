package queue

import (
	"sync"
	"time"
)

// EventType names the two notifications a queue emits.
type EventType string

const (
	// EventTimeout fires once per item whose lease expired and which was moved
	// to the redelivery queue.
	EventTimeout EventType = "timeout"
	// EventComplete fires when a ConfirmTake leaves every container empty.
	EventComplete EventType = "complete"
)

// Event is the type-erased form of a notification, used by Watch subscribers
// that do not know the queue's payload type (transports, recorders).
type Event struct {
	Type    EventType `json:"type"`
	QueueID string    `json:"queue_id"`
	Queue   string    `json:"queue"`
	ItemID  string    `json:"item_id,omitempty"`
	Item    any       `json:"item,omitempty"`
	At      time.Time `json:"at"`
}

type completeSub struct {
	id uint64
	fn func()
}

type timeoutSub[T any] struct {
	id uint64
	fn func(Item[T])
}

// notifier keeps observer lists in registration order.
//
// Delivery is synchronous on the goroutine that detected the condition.
// Subscribers that need to do real work must hand it off themselves.
type notifier[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	complete []completeSub
	timeout  []timeoutSub[T]
}

func (n *notifier[T]) onComplete(fn func()) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.complete = append(n.complete, completeSub{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.complete {
				if s.id == id {
					n.complete = append(n.complete[:i:i], n.complete[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier[T]) onTimeout(fn func(Item[T])) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.timeout = append(n.timeout, timeoutSub[T]{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.timeout {
				if s.id == id {
					n.timeout = append(n.timeout[:i:i], n.timeout[i+1:]...)
					return
				}
			}
		})
	}
}

// fireComplete calls every completion subscriber. The list is copied first so
// a subscriber may unsubscribe (or subscribe) from inside its callback.
func (n *notifier[T]) fireComplete() {
	n.mu.RLock()
	subs := make([]completeSub, len(n.complete))
	copy(subs, n.complete)
	n.mu.RUnlock()
	for _, s := range subs {
		s.fn()
	}
}

func (n *notifier[T]) fireTimeout(it Item[T]) {
	n.mu.RLock()
	subs := make([]timeoutSub[T], len(n.timeout))
	copy(subs, n.timeout)
	n.mu.RUnlock()
	for _, s := range subs {
		s.fn(it)
	}
}

func (n *notifier[T]) reset() {
	n.mu.Lock()
	n.complete = nil
	n.timeout = nil
	n.mu.Unlock()
}
