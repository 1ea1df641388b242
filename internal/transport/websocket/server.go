// Package websocket streams LeaseQ queue notifications to clients.
//
// Clients open a WebSocket connection to:
//
//	GET /queues/{name}/events
//
// On connect, and then every StatsInterval, the server sends a stats frame.
// Every timeout and completion notification the queue raises is forwarded as
// it happens. The stream is one-way; frames sent by the client are discarded.
//
// Server → client frames:
//
//	{"type":"stats","queue":"...","queue_id":"...","at":"...","stats":{...}}
//	{"type":"timeout","queue":"...","queue_id":"...","item_id":"...","item":{...},"at":"..."}
//	{"type":"complete","queue":"...","queue_id":"...","at":"..."}
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/snehjoshi/leaseq/internal/queue"
)

// FrameStats is the Type of the periodic stats frame.
const FrameStats = "stats"

const (
	defaultStatsInterval = 5 * time.Second
	pingInterval         = 30 * time.Second
	writeWait            = 10 * time.Second
	eventBuffer          = 256
)

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin upgrade requests. Requests without an
	// Origin header (native clients, curl) are allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host, err := parseHost(origin)
		if err != nil {
			return false
		}
		return host == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// Frame is the JSON structure the server sends to the client.
type Frame struct {
	Type    string       `json:"type"` // "stats" | "timeout" | "complete"
	Queue   string       `json:"queue"`
	QueueID string       `json:"queue_id"`
	ItemID  string       `json:"item_id,omitempty"`
	Item    any          `json:"item,omitempty"`
	At      time.Time    `json:"at"`
	Stats   *queue.Stats `json:"stats,omitempty"`
}

// Handler serves the event stream for the queue named by r.PathValue("name").
type Handler struct {
	Registry *queue.Registry
	// StatsInterval is the period between stats frames. Zero means 5s.
	StatsInterval time.Duration
}

// ServeHTTP upgrades the connection and runs the push loop until the client
// goes away, the request context ends, or the queue is removed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q, err := h.Registry.Get(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "queue", name, "err", err)
		return
	}
	defer conn.Close()

	// Notifications arrive on the queue's confirmer and sweeper goroutines;
	// they must never block there.
	events := make(chan queue.Event, eventBuffer)
	cancel := q.Watch(func(e queue.Event) {
		select {
		case events <- e:
		default:
			slog.Warn("websocket subscriber lagging, event dropped",
				"queue", name, "type", e.Type, "item_id", e.ItemID)
		}
	})
	defer cancel()

	// Read loop: only used to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.StatsInterval
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	statsTicker := time.NewTicker(interval)
	defer statsTicker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	if err := writeFrame(conn, statsFrame(q)); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case e := <-events:
			frame := Frame{
				Type:    string(e.Type),
				Queue:   e.Queue,
				QueueID: e.QueueID,
				ItemID:  e.ItemID,
				Item:    e.Item,
				At:      e.At,
			}
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		case <-statsTicker.C:
			f := statsFrame(q)
			if err := writeFrame(conn, f); err != nil {
				return
			}
			if f.Stats.Closed {
				_ = conn.WriteControl(gorillaws.CloseMessage,
					gorillaws.FormatCloseMessage(gorillaws.CloseGoingAway, "queue closed"),
					time.Now().Add(writeWait))
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(gorillaws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func statsFrame(q queue.Inspector) Frame {
	s := q.Stats()
	return Frame{
		Type:    FrameStats,
		Queue:   s.Name,
		QueueID: s.ID,
		At:      time.Now().UTC(),
		Stats:   &s,
	}
}

func writeFrame(conn *gorillaws.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(gorillaws.TextMessage, data)
}
