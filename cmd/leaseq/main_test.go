package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snehjoshi/leaseq/internal/archive"
	"github.com/snehjoshi/leaseq/internal/config"
	"github.com/snehjoshi/leaseq/internal/queue"
	transphttp "github.com/snehjoshi/leaseq/internal/transport/http"
	"github.com/snehjoshi/leaseq/pkg/client"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args, configPath)
}

func runCLIContext(t *testing.T, ctx context.Context, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaseq.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func noSettle(t *testing.T) {
	t.Helper()
	prev := demoSettle
	demoSettle = 0
	t.Cleanup(func() { demoSettle = prev })
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// ─── demo ─────────────────────────────────────────────────────────────────────

const quietDemo = `
demo:
  items: 5
  skip_one_in: 0
log:
  level: error
`

func TestDemoDrainsAndReports(t *testing.T) {
	noSettle(t)
	cfgPath := writeTestConfig(t, quietDemo)

	out, _, err := runCLI(t, []string{"demo"}, cfgPath)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	requireContains(t, out, "Setting up demo queue")
	requireContains(t, out, "Filled demo queue with 5 items")
	requireContains(t, out, "Read and confirmed all queue items")
	if got := strings.Count(out, "Confirmed item"); got != 5 {
		t.Fatalf("confirmed %d items, want 5\n%s", got, out)
	}
	if strings.Contains(out, "Skipping item") {
		t.Fatalf("skip_one_in 0 must never skip\n%s", out)
	}
}

func TestDemoFlagsOverrideConfig(t *testing.T) {
	noSettle(t)
	cfgPath := writeTestConfig(t, quietDemo)

	out, _, err := runCLI(t, []string{"demo", "--items", "2"}, cfgPath)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	requireContains(t, out, "Filled demo queue with 2 items")
	if got := strings.Count(out, "Took item"); got != 2 {
		t.Fatalf("took %d items, want 2\n%s", got, out)
	}
}

func TestDemoZeroItems(t *testing.T) {
	noSettle(t)
	cfgPath := writeTestConfig(t, quietDemo)

	out, _, err := runCLI(t, []string{"demo", "--items", "0"}, cfgPath)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	requireContains(t, out, "Filled demo queue with 0 items")
	if strings.Contains(out, "Reading queue items back") {
		t.Fatalf("nothing to read back\n%s", out)
	}
}

func TestDemoCancelled(t *testing.T) {
	cfgPath := writeTestConfig(t, quietDemo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := runCLIContext(t, ctx, []string{"demo"}, cfgPath)
	if err == nil || !strings.Contains(err.Error(), context.Canceled.Error()) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfgPath := writeTestConfig(t, "log:\n  format: xml\n")
	_, _, err := runCLI(t, []string{"demo"}, cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	requireContains(t, err.Error(), "invalid config")
}

// ─── demo + history ───────────────────────────────────────────────────────────

func TestDemoArchiveAndHistory(t *testing.T) {
	noSettle(t)
	archivePath := filepath.Join(t.TempDir(), "archive.db")
	cfgPath := writeTestConfig(t, quietDemo+fmt.Sprintf("archive:\n  path: %s\n", archivePath))

	if _, _, err := runCLI(t, []string{"demo", "--archive"}, cfgPath); err != nil {
		t.Fatalf("demo: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, cfgPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "Demo Queue")

	out, _, err = runCLI(t, []string{"history", "Demo Queue"}, cfgPath)
	if err != nil {
		t.Fatalf("history Demo Queue: %v", err)
	}
	requireContains(t, out, "final")

	store, err := archive.Open(archivePath)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	recs, err := store.List("Demo Queue", 1)
	store.Close()
	if err != nil || len(recs) != 1 {
		t.Fatalf("List = %v, %v", recs, err)
	}

	out, _, err = runCLI(t, []string{"history", "Demo Queue", "--id", recs[0].ID}, cfgPath)
	if err != nil {
		t.Fatalf("history --id: %v", err)
	}
	requireContains(t, out, recs[0].ID)
	requireContains(t, out, "Queue was empty")
}

func TestHistoryEmptyArchive(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.db")

	out, _, err := runCLI(t, []string{"history", "--path", archivePath}, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No snapshots")

	out, _, err = runCLI(t, []string{"history", "ghost", "--path", archivePath}, "")
	if err != nil {
		t.Fatalf("history ghost: %v", err)
	}
	requireContains(t, out, `No snapshots for "ghost"`)

	_, _, err = runCLI(t, []string{"history", "ghost", "--path", archivePath, "--id", "01J0000000000000000000000"}, "")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	requireContains(t, err.Error(), "not found")
}

// ─── inspect ──────────────────────────────────────────────────────────────────

func newAdminServer(t *testing.T) (*httptest.Server, *queue.Queue[string]) {
	t.Helper()
	cfg := config.Default()
	cfg.Admin.RateLimit = 0

	reg := queue.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q, err := queue.New[string]("", "Demo Queue", queue.DefaultConfig(), queue.WithLogger(logger))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := reg.Register(q); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ts := httptest.NewServer(transphttp.New(reg, cfg, nil, nil).Handler())
	t.Cleanup(ts.Close)
	return ts, q
}

func TestInspectListsQueues(t *testing.T) {
	ts, q := newAdminServer(t)
	q.TryAdd(queue.Item[string]{ID: "a", Data: "TICK-1"})

	out, _, err := runCLI(t, []string{"inspect", "--addr", ts.URL}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Demo Queue")
	requireContains(t, out, q.ID())
}

func TestInspectQueueContents(t *testing.T) {
	ts, q := newAdminServer(t)
	q.TryAdd(queue.Item[string]{ID: "item-a", Data: "TICK-1"})
	q.TryAdd(queue.Item[string]{ID: "item-b", Data: "TICK-2"})
	q.TryTake(1)

	out, _, err := runCLI(t, []string{"inspect", "Demo Queue", "--addr", ts.URL}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "item-a")
	requireContains(t, out, "item-b")
	requireContains(t, out, `"TICK-2"`)

	out, _, err = runCLI(t, []string{"inspect", "Demo Queue", "--addr", ts.URL, "--part", "locks"}, "")
	if err != nil {
		t.Fatalf("inspect --part locks: %v", err)
	}
	requireContains(t, out, "item-a")
	if strings.Contains(out, "item-b") {
		t.Fatalf("locks part must not list the ready item\n%s", out)
	}
}

func TestInspectEmptyQueue(t *testing.T) {
	ts, _ := newAdminServer(t)
	out, _, err := runCLI(t, []string{"inspect", "Demo Queue", "--addr", ts.URL}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestInspectUnknownQueue(t *testing.T) {
	ts, _ := newAdminServer(t)
	_, _, err := runCLI(t, []string{"inspect", "ghost", "--addr", ts.URL}, "")
	if !client.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestInspectFollowNeedsQueue(t *testing.T) {
	_, _, err := runCLI(t, []string{"inspect", "--follow"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "needs a queue name")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, buf *syncBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(buf.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q in %q", substr, buf.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInspectFollowStreamsEvents(t *testing.T) {
	ts, q := newAdminServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"inspect", "Demo Queue", "--addr", ts.URL, "--follow"})
		done <- cmd.ExecuteContext(ctx)
	}()

	// The stats frame arrives once the subscription is live.
	waitFor(t, &out, "stats ready=0")

	q.TryAdd(queue.Item[string]{ID: "a", Data: "TICK-1"})
	it, _ := q.TryTake(1)
	q.ConfirmTake(it.ID)
	waitFor(t, &out, "complete")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("inspect --follow: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("inspect --follow did not stop after cancel")
	}
}

// ─── serve ────────────────────────────────────────────────────────────────────

func TestServeExposesAdminAPI(t *testing.T) {
	port := freePort(t)
	cfgPath := writeTestConfig(t, fmt.Sprintf(`
admin:
  port: %d
demo:
  items: 3
  skip_one_in: 0
log:
  level: error
`, port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		cmd := newRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--config", cfgPath, "serve", "--every", "50ms"})
		done <- cmd.ExecuteContext(ctx)
	}()

	c := client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
	deadline := time.Now().Add(5 * time.Second)
	for {
		reqCtx, reqCancel := context.WithTimeout(ctx, time.Second)
		h, err := c.Health(reqCtx)
		reqCancel()
		if err == nil {
			if h.Queues != 1 {
				t.Fatalf("Health = %+v, want one queue", h)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	stats, err := c.Queue(ctx, "Demo Queue")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if stats.MaxLeaseMinutes != 20 {
		t.Fatalf("stats = %+v", stats)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeRejectsBadInterval(t *testing.T) {
	_, _, err := runCLI(t, []string{"serve", "--every", "0s"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "--every")
}

// ─── rendering ────────────────────────────────────────────────────────────────

func TestRenderTablePlainWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	got := renderTable(&buf, []string{"Name", "Ready"}, [][]string{{"orders", "3"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"NAME", "READY", "orders", "short", "+"} {
		requireContains(t, got, want)
	}
	if strings.Contains(got, "╭") {
		t.Fatalf("piped output must not use box drawing characters\n%s", got)
	}
	if renderTable(&buf, nil, nil, nil) != "" {
		t.Fatal("no headers should render nothing")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 10); got != "abcdef" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate long = %q", got)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "info", Format: "auto"}).Info("hello", "queue", "q")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("auto format on a non-terminal should be JSON, got %q", buf.String())
	}
	if rec["queue"] != "q" {
		t.Fatalf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info below warn level was logged: %q", buf.String())
	}
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Warn("kept")
	requireContains(t, buf.String(), "msg=kept")
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	cases := []struct {
		e    client.Event
		want string
	}{
		{client.Event{Type: "timeout", ItemID: "x", At: at}, "12:00:00 timeout item=x"},
		{client.Event{Type: "complete", At: at}, "12:00:00 complete"},
		{client.Event{Type: "stats", At: at, Stats: &client.QueueStats{Ready: 1, Locked: 2}}, "12:00:00 stats ready=1 redelivery=0 locked=2"},
	}
	for _, tc := range cases {
		if got := formatEvent(tc.e); got != tc.want {
			t.Errorf("formatEvent(%s) = %q, want %q", tc.e.Type, got, tc.want)
		}
	}
}
