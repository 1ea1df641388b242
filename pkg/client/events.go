package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Events opens the notification stream of a queue. The returned channel
// yields a stats frame first, then every timeout and completion as the queue
// raises them, and periodic stats frames. It is closed when ctx is done, the
// server ends the stream, or the connection fails.
func (c *Client) Events(ctx context.Context, name string) (<-chan Event, error) {
	wsURL, err := c.wsURL(queuePath(name) + "/events")
	if err != nil {
		return nil, err
	}
	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set("X-Api-Key", c.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, apiError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("leaseq: dial %s: %w", wsURL, err)
	}

	out := make(chan Event, 16)

	// Unblock ReadMessage when ctx ends.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	go func() {
		defer close(out)
		defer close(stop)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var e Event
			if err := json.Unmarshal(data, &e); err != nil {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) wsURL(path string) (string, error) {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path, nil
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path, nil
	}
	return "", fmt.Errorf("leaseq: base URL %q must start with http:// or https://", c.baseURL)
}
