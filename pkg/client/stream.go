package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// StreamEvent is one update from the realtime feed.
type StreamEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// StreamFilter selects which events the subscription receives. The zero
// value receives everything.
type StreamFilter struct {
	EventTypes []string `json:"eventTypes,omitempty"`
	SessionIDs []string `json:"sessionIds,omitempty"`
	UserIDs    []string `json:"userIds,omitempty"`
}

// Stream subscribes to the server's realtime feed. Events arrive on the
// returned channel until the context is cancelled or the connection drops,
// after which the channel is closed.
func (c *Client) Stream(ctx context.Context, filter StreamFilter) (<-chan StreamEvent, error) {
	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	// Narrow the default all-events subscription if a filter was given.
	if len(filter.EventTypes) > 0 || len(filter.SessionIDs) > 0 || len(filter.UserIDs) > 0 {
		sub := map[string]interface{}{
			"allEvents":  false,
			"eventTypes": filter.EventTypes,
			"sessionIds": filter.SessionIDs,
			"userIds":    filter.UserIDs,
		}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send subscription: %w", err)
		}
	}

	events := make(chan StreamEvent, 16)

	// Close the connection when the context ends so the read loop unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(events)
		defer func() { _ = conn.Close() }()
		for {
			var ev StreamEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
