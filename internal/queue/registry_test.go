package queue_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/snehjoshi/leaseq/internal/queue"
)

func newRegistered(t *testing.T, reg *queue.Registry, name string) *queue.Queue[string] {
	t.Helper()
	q, err := queue.New[string]("", name, queue.DefaultConfig(), queue.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("queue.New(%s): %v", name, err)
	}
	if err := reg.Register(q); err != nil {
		_ = q.Close()
		t.Fatalf("Register(%s): %v", name, err)
	}
	return q
}

// ─── Register / Get ──────────────────────────────────────────────────────────

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	q := newRegistered(t, reg, "orders")

	got, err := reg.Get("orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID() != q.ID() {
		t.Errorf("Get returned queue %s, want %s", got.ID(), q.ID())
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	newRegistered(t, reg, "orders")

	dup, _ := queue.New[int]("", "orders", queue.DefaultConfig(), queue.WithLogger(quietLogger()))
	defer dup.Close()

	if err := reg.Register(dup); !errors.Is(err, queue.ErrQueueExists) {
		t.Fatalf("duplicate Register: want ErrQueueExists, got %v", err)
	}
}

func TestRegistry_RegisterInvalidName(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	q, _ := queue.New[int]("", "a/b", queue.DefaultConfig(), queue.WithLogger(quietLogger()))
	defer q.Close()

	if err := reg.Register(q); !errors.Is(err, queue.ErrInvalidName) {
		t.Fatalf("Register(a/b): want ErrInvalidName, got %v", err)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := queue.NewRegistry()
	if _, err := reg.Get("nope"); !errors.Is(err, queue.ErrQueueNotFound) {
		t.Fatalf("Get(nope): want ErrQueueNotFound, got %v", err)
	}
}

// ─── Remove ──────────────────────────────────────────────────────────────────

func TestRegistry_RemoveClosesQueue(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	q := newRegistered(t, reg, "orders")

	if err := reg.Remove("orders"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !q.Stats().Closed {
		t.Error("Remove did not close the queue")
	}
	if reg.Len() != 0 {
		t.Errorf("Len after Remove = %d, want 0", reg.Len())
	}
	if err := reg.Remove("orders"); !errors.Is(err, queue.ErrQueueNotFound) {
		t.Errorf("second Remove: want ErrQueueNotFound, got %v", err)
	}
}

// ─── List / AllStats ─────────────────────────────────────────────────────────

func TestRegistry_ListSorted(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	for _, n := range []string{"zeta", "alpha", "mid"} {
		newRegistered(t, reg, n)
	}

	if got := strings.Join(reg.List(), ","); got != "alpha,mid,zeta" {
		t.Fatalf("List = %s, want alpha,mid,zeta", got)
	}

	stats := reg.AllStats()
	if len(stats) != 3 || stats[0].Name != "alpha" || stats[2].Name != "zeta" {
		t.Fatalf("AllStats order = %+v", stats)
	}
}

func TestRegistry_MixedPayloadTypes(t *testing.T) {
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	type job struct{ N int }
	jobs, _ := queue.New[job]("", "jobs", queue.DefaultConfig(), queue.WithLogger(quietLogger()))
	if err := reg.Register(jobs); err != nil {
		t.Fatalf("Register(jobs): %v", err)
	}
	newRegistered(t, reg, "strings")

	jobs.TryAdd(queue.Item[job]{ID: "j1", Data: job{N: 7}})

	insp, _ := reg.Get("jobs")
	v, err := insp.Inspect(queue.PartMain)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	items := v.([]queue.Item[job])
	if len(items) != 1 || items[0].Data.N != 7 {
		t.Fatalf("Inspect(main) = %+v", items)
	}
}

// ─── Close ───────────────────────────────────────────────────────────────────

func TestRegistry_CloseClosesAll(t *testing.T) {
	reg := queue.NewRegistry()
	a := newRegistered(t, reg, "a")
	b := newRegistered(t, reg, "b")

	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Stats().Closed || !b.Stats().Closed {
		t.Error("Close left a queue open")
	}
	if reg.Len() != 0 {
		t.Errorf("Len after Close = %d", reg.Len())
	}
}

// ─── ValidName ───────────────────────────────────────────────────────────────

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"orders", true},
		{"Demo Queue", true},
		{"orders-v2_eu.1", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
		{"nul\x00byte", false},
		{strings.Repeat("x", 129), false},
		{strings.Repeat("x", 128), true},
	}
	for _, tc := range tests {
		if got := queue.ValidName(tc.name); got != tc.want {
			t.Errorf("ValidName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
