package queue

import (
	"container/list"
	"sync"
)

// fifo is one half of the ready store: an insertion-ordered list with its own
// lock so producers and consumers never need an outer lock to use it.
//
// capacity <= 0 means unbounded. Only the primary queue is ever bounded; the
// redelivery queue must always accept what the sweeper hands it.
type fifo[T any] struct {
	mu       sync.Mutex
	items    *list.List // elements are Item[T]
	capacity int
}

func newFIFO[T any](capacity int) *fifo[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &fifo[T]{items: list.New(), capacity: capacity}
}

// push appends it regardless of capacity.
func (f *fifo[T]) push(it Item[T]) {
	f.mu.Lock()
	f.items.PushBack(it)
	f.mu.Unlock()
}

// tryPush appends it unless the list is at capacity.
func (f *fifo[T]) tryPush(it Item[T]) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity > 0 && f.items.Len() >= f.capacity {
		return false
	}
	f.items.PushBack(it)
	return true
}

// tryPop removes and returns the head without blocking.
func (f *fifo[T]) tryPop() (Item[T], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	front := f.items.Front()
	if front == nil {
		var zero Item[T]
		return zero, false
	}
	f.items.Remove(front)
	return front.Value.(Item[T]), true
}

func (f *fifo[T]) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// full reports whether a tryPush would currently fail.
func (f *fifo[T]) full() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity > 0 && f.items.Len() >= f.capacity
}

// snapshot copies the current contents, head first, without removing them.
func (f *fifo[T]) snapshot() []Item[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Item[T], 0, f.items.Len())
	for e := f.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Item[T]))
	}
	return out
}

// clear drops everything and returns how many items were dropped.
func (f *fifo[T]) clear() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items.Len()
	f.items.Init()
	return n
}
