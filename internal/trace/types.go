package trace

import (
	"os"
	"time"
)

// EventTypeCommand is the only event type produced by the recorder.
const EventTypeCommand = "command"

// sessionIDLayout derives a session id from its start time.
const sessionIDLayout = "2006-01-02_15-04-05"

// Event is one captured command and the output it produced.
type Event struct {
	ID         int       `json:"id"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	Output     string    `json:"output"`
	ExitCode   int       `json:"exit_code"`
	DurationMS int64     `json:"duration_ms"`
}

// Session is a sealed recording: every event committed between start and end.
type Session struct {
	ID        string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Hostname  string    `json:"hostname"`
	Events    []Event   `json:"events"`
}

// SessionID returns the id of a session started at t.
func SessionID(t time.Time) string {
	return t.Format(sessionIDLayout)
}

// FileName returns the trace file name for a session id.
func FileName(sessionID string) string {
	return sessionID + ".trace"
}

// Hostname returns the host identifier stored in sessions. It never fails;
// an unknown host is recorded as "unknown".
func Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
