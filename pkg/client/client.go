// Package client is the Go client for the LeaseQ admin API.
//
// # Quick start
//
//	c := client.New("http://127.0.0.1:8085")
//
//	queues, err := c.ListQueues(ctx)
//	dump, err := c.Dump(ctx, "Demo Queue")
//	for _, it := range dump.LockList {
//	    fmt.Println(it.ID)
//	}
//
//	// Follow notifications until ctx is cancelled
//	events, err := c.Events(ctx, "Demo Queue")
//	for e := range events {
//	    fmt.Println(e.Type, e.ItemID)
//	}
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Use IsNotFound or errors.As to inspect it.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client
// internally so connections are reused across goroutines.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("leaseq: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the error is a 401 from the server.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. The default is 30 seconds.
// It does not apply to the Events stream.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the LeaseQ admin API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client for the admin server at baseURL.
//
//	c := client.New("http://127.0.0.1:8085")
//	c := client.New("http://leaseq.internal:8085", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Health checks the server's /health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var resp struct {
		Status   string `json:"status"`
		Queues   int    `json:"queues"`
		UptimeMs int64  `json:"uptime_ms"`
		Version  string `json:"version"`
		Archive  bool   `json:"archive"`
	}
	if err := c.do(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &HealthInfo{
		Status:  resp.Status,
		Queues:  resp.Queues,
		Uptime:  time.Duration(resp.UptimeMs) * time.Millisecond,
		Version: resp.Version,
		Archive: resp.Archive,
	}, nil
}

// ListQueues returns stats for every live queue, ordered by name.
func (c *Client) ListQueues(ctx context.Context) ([]QueueStats, error) {
	var resp struct {
		Queues []QueueStats `json:"queues"`
	}
	if err := c.do(ctx, "/queues", &resp); err != nil {
		return nil, err
	}
	return resp.Queues, nil
}

// Queue returns stats for one queue.
func (c *Client) Queue(ctx context.Context, name string) (*QueueStats, error) {
	var s QueueStats
	if err := c.do(ctx, queuePath(name), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Dump returns all three containers of a queue from one consistent view.
func (c *Client) Dump(ctx context.Context, name string) (*Dump, error) {
	var d Dump
	if err := c.do(ctx, queuePath(name)+"/dump", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DumpPart returns a single container: PartMain, PartTimeout or PartLocks.
func (c *Client) DumpPart(ctx context.Context, name string, part Part) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, queuePath(name)+"/dump/"+url.PathEscape(string(part)), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// History lists archived snapshots of a queue, newest first, without their
// dumps. limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	path := queuePath(name) + "/history"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := c.do(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

// Snapshot returns one archived snapshot, dump included.
func (c *Client) Snapshot(ctx context.Context, name, snapshotID string) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(ctx, queuePath(name)+"/history/"+url.PathEscape(snapshotID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

func queuePath(name string) string {
	return "/queues/" + url.PathEscape(name)
}

// do performs a GET and decodes the JSON response into resp.
func (c *Client) do(ctx context.Context, path string, resp any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("leaseq: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("leaseq: request GET %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("leaseq: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return apiError(httpResp.StatusCode, respBody)
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("leaseq: decode response: %w", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)
	msg := errResp.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
