// Package queue implements the LeaseQ engine: an in-process work queue with
// visibility-timeout leases.
//
// Domain types (Item, Status, Dump) live in internal/types so that the archive
// and transport layers can use them without importing the engine. This file
// re-exports them as aliases so callers can write queue.Item[T] without any
// conversion.
package queue

import "github.com/snehjoshi/leaseq/internal/types"

// Re-export core domain types from the types package.
type Item[T any] = types.Item[T]
type Dump[T any] = types.Dump[T]
type Status = types.Status

// Re-export status constants.
const (
	StatusReady      = types.StatusReady
	StatusRedelivery = types.StatusRedelivery
	StatusLeased     = types.StatusLeased
	StatusConfirmed  = types.StatusConfirmed
)
