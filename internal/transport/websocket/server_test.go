package websocket_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/snehjoshi/leaseq/internal/queue"
	transportws "github.com/snehjoshi/leaseq/internal/transport/websocket"
)

func newServer(t *testing.T) (*httptest.Server, *queue.Queue[string]) {
	t.Helper()
	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q, err := queue.New[string]("", "orders", queue.DefaultConfig(), queue.WithLogger(logger))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := reg.Register(q); err != nil {
		t.Fatalf("Register: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /queues/{name}/events", &transportws.Handler{Registry: reg, StatsInterval: time.Hour})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q
}

func dial(t *testing.T, srv *httptest.Server, name string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/queues/" + name + "/events"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn) transportws.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f transportws.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return f
}

func TestEvents_InitialStatsFrame(t *testing.T) {
	srv, q := newServer(t)
	q.TryAdd(queue.Item[string]{ID: "a", Data: "x"})

	conn := dial(t, srv, "orders")
	f := readFrame(t, conn)
	if f.Type != transportws.FrameStats {
		t.Fatalf("first frame type = %q, want stats", f.Type)
	}
	if f.Stats == nil || f.Stats.Length != 1 || f.Queue != "orders" {
		t.Fatalf("stats frame = %+v", f)
	}
}

func TestEvents_ForwardsCompletion(t *testing.T) {
	srv, q := newServer(t)
	conn := dial(t, srv, "orders")
	readFrame(t, conn) // stats; the subscription is live once this arrives

	q.TryAdd(queue.Item[string]{ID: "a", Data: "x"})
	it, _ := q.TryTake(1)
	q.ConfirmTake(it.ID)

	f := readFrame(t, conn)
	if f.Type != string(queue.EventComplete) {
		t.Fatalf("frame type = %q, want complete", f.Type)
	}
	if f.QueueID != q.ID() {
		t.Errorf("frame queue id = %s, want %s", f.QueueID, q.ID())
	}
}

func TestEvents_UnknownQueue(t *testing.T) {
	srv, _ := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/queues/ghost/events"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial to unknown queue succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 handshake response, got %+v", resp)
	}
}

func TestEvents_RejectsCrossOrigin(t *testing.T) {
	srv, _ := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/queues/orders/events"
	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := gorillaws.DefaultDialer.Dial(url, hdr); err == nil {
		t.Fatal("cross-origin upgrade succeeded")
	}
}
