package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/snehjoshi/leaseq/internal/archive"
	"github.com/snehjoshi/leaseq/internal/queue"
)

// Version is reported by /health.
const Version = "1.0.0"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Handler groups all HTTP request handlers around a queue.Registry.
type Handler struct {
	registry *queue.Registry
	archive  *archive.Store // nil when archiving is off
	started  time.Time
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	Status   string `json:"status"`
	Queues   int    `json:"queues"`
	Uptime   string `json:"uptime"`
	UptimeMs int64  `json:"uptime_ms"`
	Version  string `json:"version"`
	Archive  bool   `json:"archive"`
}

type listQueuesResp struct {
	Queues []queue.Stats `json:"queues"`
}

type historyResp struct {
	Queue     string           `json:"queue"`
	Snapshots []archive.Record `json:"snapshots"`
}

// ─── Health ───────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(h.started)
	writeJSON(w, http.StatusOK, healthResp{
		Status:   "ok",
		Queues:   h.registry.Len(),
		Uptime:   elapsed.Round(time.Second).String(),
		UptimeMs: elapsed.Milliseconds(),
		Version:  Version,
		Archive:  h.archive != nil,
	})
}

// ─── Queues ───────────────────────────────────────────────────────────────────

func (h *Handler) listQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listQueuesResp{Queues: h.registry.AllStats()})
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q.Stats())
}

// dumpQueue serves both /dump (everything) and /dump/{part}.
func (h *Handler) dumpQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.lookup(w, r)
	if !ok {
		return
	}
	part := queue.Part(r.PathValue("part"))
	if part == queue.PartAll {
		// "all" is the whole-dump route, not a part.
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "part must be main, timeout or locks"})
		return
	}
	v, err := q.Inspect(part)
	if err != nil {
		if errors.Is(err, queue.ErrUnknownPart) {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "part must be main, timeout or locks"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ─── History ─────────────────────────────────────────────────────────────────

// listHistory returns archived snapshots, newest first, without dumps.
// Query param: limit (default 20, max 500). The queue need not be live.
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !queue.ValidName(name) {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid queue name"})
		return
	}
	limit := parseIntParam(r, "limit", defaultHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	recs, err := h.archive.List(name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, historyResp{Queue: name, Snapshots: recs})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := h.archive.Get(name, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// lookup resolves {name} to a live queue, writing 400/404 on failure.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (queue.Inspector, bool) {
	name := r.PathValue("name")
	if !queue.ValidName(name) {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid queue name"})
		return nil, false
	}
	q, err := h.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return q, true
}

func parseIntParam(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResp{Error: err.Error()})
}
