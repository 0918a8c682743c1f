package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"nhooyr.io/websocket"
)

// Handlers receive messages from Subscribe. Either may be nil.
type Handlers struct {
	OnSession func(SessionMessage)
	OnEvent   func(EventMessage)
}

// Subscribe connects to a live feed URL (as published in the control
// directory) and dispatches messages until ctx is done or the daemon closes
// the feed. A normal close returns nil.
func Subscribe(ctx context.Context, url string, h Handlers) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				return nil
			}
			return fmt.Errorf("read live feed: %w", err)
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			slog.Debug("discarding malformed feed message", "error", err)
			continue
		}

		switch head.Type {
		case MessageSession:
			var msg SessionMessage
			if err := json.Unmarshal(data, &msg); err == nil && h.OnSession != nil {
				h.OnSession(msg)
			}
		case MessageEvent:
			var msg EventMessage
			if err := json.Unmarshal(data, &msg); err == nil && h.OnEvent != nil {
				h.OnEvent(msg)
			}
		default:
			slog.Debug("ignoring feed message", "type", head.Type)
		}
	}
}
