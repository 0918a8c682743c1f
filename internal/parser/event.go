package parser

import (
	"time"

	"github.com/user/iris/internal/trace"
)

// BuildInput holds the raw buffers of one command boundary.
type BuildInput struct {
	RawInput  string
	RawOutput string
	Duration  time.Duration
	Timestamp time.Time
}

// BuildEvent cleans and redacts the buffers and returns the finished event,
// or nil when the command is blank. The event id is left at zero; it is
// assigned when the event is committed to a timeline.
func BuildEvent(in BuildInput) *trace.Event {
	command := CleanCommand(in.RawInput)
	if command == "" {
		return nil
	}
	output := Redact(CleanOutput(in.RawOutput))

	return &trace.Event{
		Type:       trace.EventTypeCommand,
		Timestamp:  in.Timestamp,
		Command:    Redact(command),
		Output:     output,
		ExitCode:   GuessExitStatus(output),
		DurationMS: in.Duration.Milliseconds(),
	}
}
