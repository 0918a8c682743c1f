package hub

import (
	"time"

	"github.com/user/iris/internal/trace"
)

const (
	MessageSession = "session"
	MessageEvent   = "event"
)

// SessionMessage is sent to every watcher right after it connects.
type SessionMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Events    int       `json:"events"`
}

// EventMessage carries one committed event.
type EventMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Event     trace.Event `json:"event"`
}
