package trace

import (
	"sync"
	"time"
)

// Timeline is the mutable part of a session that is still recording. Commit
// may be called from any number of goroutines; ids stay contiguous from 1.
type Timeline struct {
	id       string
	start    time.Time
	hostname string

	mu     sync.Mutex
	events []Event
}

// NewTimeline opens a timeline for a recording that started at start.
func NewTimeline(start time.Time) *Timeline {
	return &Timeline{
		id:       SessionID(start),
		start:    start,
		hostname: Hostname(),
		events:   make([]Event, 0, 32),
	}
}

// ID returns the session id of the recording.
func (t *Timeline) ID() string { return t.id }

// Start returns the recording start time.
func (t *Timeline) Start() time.Time { return t.start }

// Commit assigns the next sequence id to ev, appends it and returns the
// committed copy. Any id already set on ev is overwritten.
func (t *Timeline) Commit(ev Event) Event {
	t.mu.Lock()
	ev.ID = len(t.events) + 1
	t.events = append(t.events, ev)
	t.mu.Unlock()
	return ev
}

// Deliver commits ev. It lets a Timeline act as the sink of a capture
// machine in standalone mode.
func (t *Timeline) Deliver(ev Event) error {
	t.Commit(ev)
	return nil
}

// Len returns the number of committed events.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Snapshot returns a copy of the committed events in commit order.
func (t *Timeline) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Seal returns the finished session ending at end.
func (t *Timeline) Seal(end time.Time) *Session {
	return &Session{
		ID:        t.id,
		StartTime: t.start,
		EndTime:   end,
		Hostname:  t.hostname,
		Events:    t.Snapshot(),
	}
}
