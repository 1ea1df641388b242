package queue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ─── errors ──────────────────────────────────────────────────────────────────

var (
	ErrQueueExists   = errors.New("queue already exists")
	ErrQueueNotFound = errors.New("queue not found")
	ErrInvalidName   = errors.New("invalid queue name")
	ErrUnknownPart   = errors.New("unknown dump part")
)

// ─── Inspector ────────────────────────────────────────────────────────────────

// Part selects one container of a queue for Inspect.
type Part string

const (
	PartAll     Part = "all"
	PartMain    Part = "main"
	PartTimeout Part = "timeout"
	PartLocks   Part = "locks"
)

// Inspector is the payload-agnostic view of a Queue[T]. Transports, the
// snapshot recorder and the CLI work with Inspectors so they never need to
// know T.
type Inspector interface {
	ID() string
	Name() string
	Stats() Stats
	// Inspect returns a copy of the requested container(s): a Dump[T] for
	// PartAll, a []Item[T] otherwise.
	Inspect(part Part) (any, error)
	Watch(fn func(Event)) (cancel func())
	Close() error
}

var _ Inspector = (*Queue[string])(nil)

// Inspect implements Inspector.
func (q *Queue[T]) Inspect(part Part) (any, error) {
	switch part {
	case PartAll, "":
		return q.DumpAll(), nil
	case PartMain:
		return q.DumpQueue(), nil
	case PartTimeout:
		return q.DumpTimeoutQueue(), nil
	case PartLocks:
		return q.DumpLockList(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPart, part)
}

// ValidName reports whether name is usable as a registry key and URL path
// segment: non-empty, at most 128 bytes, no path separators or NUL, and not
// "." or "..".
func ValidName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return name != "." && name != ".."
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry tracks every live queue in the process by name.
//
// The registry does not create queues (their payload type is only known to
// the caller); it takes ownership of registered ones and closes them on
// Remove or Close.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]Inspector // name → queue
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]Inspector)}
}

// Register adds q under q.Name().
// Returns ErrInvalidName or ErrQueueExists.
func (r *Registry) Register(q Inspector) error {
	name := q.Name()
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queues[name]; exists {
		return fmt.Errorf("%w: %s", ErrQueueExists, name)
	}
	r.queues[name] = q
	return nil
}

// Get returns the live queue registered as name, or ErrQueueNotFound.
func (r *Registry) Get(name string) (Inspector, error) {
	r.mu.RLock()
	q, ok := r.queues[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	return q, nil
}

// Remove closes and forgets the queue registered as name.
// Returns ErrQueueNotFound if there is none.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	q, ok := r.queues[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	delete(r.queues, name)
	r.mu.Unlock()

	if err := q.Close(); err != nil {
		return fmt.Errorf("remove %s: close queue: %w", name, err)
	}
	return nil
}

// List returns the registered names in ascending order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for n := range r.queues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered queues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}

// AllStats returns Stats for every registered queue, ordered by name.
func (r *Registry) AllStats() []Stats {
	r.mu.RLock()
	qs := make([]Inspector, 0, len(r.queues))
	for _, q := range r.queues {
		qs = append(qs, q)
	}
	r.mu.RUnlock()

	out := make([]Stats, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every registered queue and empties the registry. It returns
// the first close error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	queues := make([]Inspector, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.queues = make(map[string]Inspector)
	r.mu.Unlock()

	var firstErr error
	for _, q := range queues {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
