package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/iris/internal/trace"
)

// ArchivedSession is one row of the session index.
type ArchivedSession struct {
	ID         string    `json:"id"`
	TracePath  string    `json:"trace_path"`
	Hostname   string    `json:"hostname"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	EventCount int       `json:"event_count"`
	ErrorCount int       `json:"error_count"`
}

// SearchHit is an archived event matching a search, with its session.
type SearchHit struct {
	SessionID string      `json:"session_id"`
	TracePath string      `json:"trace_path"`
	Event     trace.Event `json:"event"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

// likePattern builds a LIKE pattern matching q anywhere, escaping LIKE
// metacharacters with a backslash.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}
