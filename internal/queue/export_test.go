package queue

// Sweep runs one expiry sweep on the caller's goroutine and returns the items
// it moved to the redelivery queue.
func (q *Queue[T]) Sweep() []Item[T] { return q.sweep() }
