// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for LeaseQ. It deliberately avoids the prometheus/client_golang
// package so the binary stays small with no additional dependencies.
//
// # Counter naming convention
//
// Every counter uses a tab-separated string as its label key so that a single
// sync.Map can hold all label combinations without additional map nesting.
//
//	Added / Taken / Redelivered / Confirmed / Refreshed / TimedOut /
//	Completions / Sweeps / SweepOverruns / SweepDurMs      →  key = "queue"
//	HTTPReqs                                               →  key = "method\tpath\tstatus"
//	HTTPDurMs / HTTPDurCnt                                 →  key = "method\tpath"
//
// # Prometheus text output
//
// Calling Registry.Handler() returns an http.Handler that renders all counters
// in the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map and
// atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Add increments the counter for key by n.
func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

// Value returns the current value for key, zero if it was never touched.
func (lc *labelCounter) Value(key string) int64 {
	v, ok := lc.vals.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Each calls fn for every key/value pair in ascending key order.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	type kv struct {
		k string
		v int64
	}
	var all []kv
	lc.vals.Range(func(k, v any) bool {
		all = append(all, kv{k.(string), v.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].k < all[j].k })
	for _, e := range all {
		fn(e.k, e.v)
	}
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds all LeaseQ application metrics. The zero value is ready to
// use; a nil *Registry is not, so callers guard with a nil check.
type Registry struct {
	// Item lifecycle counters.  key = queue name
	Added       labelCounter
	Taken       labelCounter
	Redelivered labelCounter // subset of Taken served from the redelivery queue
	Confirmed   labelCounter
	Refreshed   labelCounter
	TimedOut    labelCounter
	Completions labelCounter

	// Expiry sweeper counters.  key = queue name
	Sweeps        labelCounter
	SweepOverruns labelCounter
	SweepDurMs    labelCounter // sum of sweep durations in milliseconds

	// HTTP-level counters.  key = "method\tpath\tstatus" (Reqs) or "method\tpath" (Dur*)
	HTTPReqs   labelCounter
	HTTPDurMs  labelCounter // sum of request durations in milliseconds
	HTTPDurCnt labelCounter // number of requests (same key as HTTPDurMs, for avg)
}

// queueFamily describes one per-queue counter for the text renderer.
type queueFamily struct {
	name, help string
	c          *labelCounter
}

func (r *Registry) queueFamilies() []queueFamily {
	return []queueFamily{
		{"leaseq_items_added_total", "Total items added to the primary queue", &r.Added},
		{"leaseq_items_taken_total", "Total items leased by consumers", &r.Taken},
		{"leaseq_items_redelivered_total", "Total items leased from the redelivery queue", &r.Redelivered},
		{"leaseq_items_confirmed_total", "Total leases confirmed by consumers", &r.Confirmed},
		{"leaseq_leases_refreshed_total", "Total successful lease refreshes", &r.Refreshed},
		{"leaseq_items_timed_out_total", "Total leases that expired and were requeued", &r.TimedOut},
		{"leaseq_completions_total", "Total transitions into the fully drained state", &r.Completions},
		{"leaseq_sweeps_total", "Total expiry sweeps run", &r.Sweeps},
		{"leaseq_sweep_overruns_total", "Total sweeps that outlasted the sweep interval", &r.SweepOverruns},
		{"leaseq_sweep_duration_milliseconds_sum", "Sum of expiry sweep durations in milliseconds", &r.SweepDurMs},
	}
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, r.Render())
	})
}

// Render returns every non-empty metric family in exposition format.
func (r *Registry) Render() string {
	var b strings.Builder

	// ── queue counters ────────────────────────────────────────────────────
	for _, fam := range r.queueFamilies() {
		c := fam.c
		writeFamily(&b, fam.name, fam.help, "counter",
			func(fn func(labels, val string)) {
				c.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`queue=%q`, key), fmt.Sprintf("%d", val))
				})
			})
	}

	// ── HTTP counters ─────────────────────────────────────────────────────
	writeFamily(&b, "leaseq_http_requests_total",
		"Total HTTP requests by method, path, and status code", "counter",
		func(fn func(labels, val string)) {
			r.HTTPReqs.Each(func(key string, val int64) {
				method, path, status := splitThree(key)
				fn(fmt.Sprintf(`method=%q,path=%q,status=%q`, method, path, status),
					fmt.Sprintf("%d", val))
			})
		})

	writeFamily(&b, "leaseq_http_request_duration_milliseconds_sum",
		"Sum of HTTP request durations in milliseconds", "counter",
		func(fn func(labels, val string)) {
			r.HTTPDurMs.Each(func(key string, val int64) {
				method, path := splitTwo(key)
				fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
					fmt.Sprintf("%d", val))
			})
		})

	writeFamily(&b, "leaseq_http_request_duration_milliseconds_count",
		"Count of observed HTTP request durations", "counter",
		func(fn func(labels, val string)) {
			r.HTTPDurCnt.Each(func(key string, val int64) {
				method, path := splitTwo(key)
				fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
					fmt.Sprintf("%d", val))
			})
		})

	return b.String()
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// writeFamily writes a single Prometheus metric family to b.
// fill is called with a writer function that appends individual label+value lines.
func writeFamily(
	b *strings.Builder,
	name, help, typ string,
	fill func(fn func(labels, val string)),
) {
	// Buffer individual metric lines so we can skip the header when empty.
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}

// splitTwo splits a tab-delimited key of the form "a\tb" into (a, b).
// If there is no tab, the whole string is returned as the first component.
func splitTwo(key string) (string, string) {
	i := strings.IndexByte(key, '\t')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// splitThree splits a tab-delimited key "a\tb\tc" into (a, b, c).
func splitThree(key string) (string, string, string) {
	a, rest := splitTwo(key)
	b, c := splitTwo(rest)
	return a, b, c
}

// ─── Convenience key builders ─────────────────────────────────────────────────

// HTTPKey builds the label key used by HTTPReqs.
func HTTPKey(method, path, status string) string {
	return method + "\t" + path + "\t" + status
}

// HTTPDurKey builds the label key used by HTTPDurMs / HTTPDurCnt.
func HTTPDurKey(method, path string) string {
	return method + "\t" + path
}
