// Package capture segments a terminal's keystroke and output streams into
// command boundaries.
package capture

import (
	"bytes"
	"strings"
	"time"

	"github.com/user/iris/internal/parser"
	"github.com/user/iris/internal/trace"
)

// State is the phase of the terminal as seen by the machine.
type State int

const (
	// StateInput means the user is typing and has not submitted yet.
	StateInput State = iota
	// StateRunning means a command was submitted and its output is streaming.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInput:
		return "input"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Sink receives every finished event. A standalone recording commits to a
// trace.Timeline; an attached terminal sends to the daemon.
type Sink interface {
	Deliver(ev trace.Event) error
}

// Machine tracks one terminal. It is not safe for concurrent use; the pty
// driver owns it from a single goroutine.
type Machine struct {
	sink Sink
	now  func() time.Time

	state     State
	input     bytes.Buffer
	output    bytes.Buffer
	submitted time.Time
	finished  bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(sink Sink, opts ...Option) *Machine {
	m := &Machine{
		sink:  sink,
		now:   time.Now,
		state: StateInput,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State { return m.state }

// Key consumes keystrokes in arrival order. The caller forwards the same
// bytes to the pty.
func (m *Machine) Key(p []byte) error {
	for _, b := range p {
		if m.state != StateInput {
			if err := m.commit(); err != nil {
				return err
			}
			m.input.Reset()
			m.output.Reset()
			m.state = StateInput
		}

		m.input.WriteByte(b)

		if b == '\r' || b == '\n' {
			m.submitted = m.now()
			m.state = StateRunning
		}
	}
	return nil
}

// Output consumes bytes read from the pty. Only output that follows a
// submission is kept.
func (m *Machine) Output(p []byte) {
	if m.state == StateRunning {
		m.output.Write(p)
	}
}

// Finish ends the stream and commits the command still running, if any.
// Later calls do nothing.
func (m *Machine) Finish() error {
	if m.finished {
		return nil
	}
	m.finished = true
	err := m.commit()
	m.input.Reset()
	m.output.Reset()
	m.state = StateInput
	return err
}

func (m *Machine) commit() error {
	if m.state != StateRunning || strings.TrimSpace(m.input.String()) == "" {
		return nil
	}
	now := m.now()
	ev := parser.BuildEvent(parser.BuildInput{
		RawInput:  strings.ToValidUTF8(m.input.String(), "�"),
		RawOutput: strings.ToValidUTF8(m.output.String(), "�"),
		Duration:  now.Sub(m.submitted),
		Timestamp: now,
	})
	if ev == nil {
		return nil
	}
	return m.sink.Deliver(*ev)
}
