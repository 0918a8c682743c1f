// Package report renders saved sessions for people: search results,
// replays, summaries, plain-text exports and archive listings.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/user/iris/internal/trace"
)

const separatorWidth = 40

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// Matches reports whether ev contains query in its command or output,
// ignoring case.
func Matches(ev trace.Event, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(ev.Command), q) ||
		strings.Contains(strings.ToLower(ev.Output), q)
}

// Search prints every event of s matching query and returns how many matched.
func Search(w io.Writer, s *trace.Session, query string) int {
	found := 0
	for _, ev := range s.Events {
		if !Matches(ev, query) {
			continue
		}
		found++
		fmt.Fprintf(w, "[%s] Event #%d (Exit: %d)\n", timestamp(ev.Timestamp), ev.ID, ev.ExitCode)
		writeEventBody(w, ev, false)
		fmt.Fprintln(w, strings.Repeat("-", separatorWidth))
	}
	fmt.Fprintf(w, "Found %d matching events.\n", found)
	return found
}

func writeEventBody(w io.Writer, ev trace.Event, color bool) {
	prompt := "$"
	if color {
		prompt = "\x1b[1;32m$\x1b[0m"
	}
	fmt.Fprintf(w, "%s %s\n", prompt, ev.Command)
	if ev.Output != "" {
		fmt.Fprintln(w, ev.Output)
	}
}

type ReplayOptions struct {
	// Delay is the pause after each event.
	Delay time.Duration
	// Color highlights the prompt; set it only for terminals.
	Color bool
}

// Replay prints each event as it would have looked at the prompt, pausing
// between events. It stops early when ctx is cancelled.
func Replay(ctx context.Context, w io.Writer, s *trace.Session, opts ReplayOptions) error {
	for _, ev := range s.Events {
		writeEventBody(w, ev, opts.Color)
		if opts.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Stats are the figures shown by Summary.
type Stats struct {
	Duration    time.Duration
	Commands    int
	Errors      int
	CommandTime time.Duration
}

// Summarize computes Stats. Duration is end minus start; recordings without
// a usable end fall back to the time spent in commands.
func Summarize(s *trace.Session) Stats {
	var st Stats
	for _, ev := range s.Events {
		st.Commands++
		if ev.ExitCode != 0 {
			st.Errors++
		}
		st.CommandTime += time.Duration(ev.DurationMS) * time.Millisecond
	}
	if !s.StartTime.IsZero() && !s.EndTime.IsZero() && !s.EndTime.Before(s.StartTime) {
		st.Duration = s.EndTime.Sub(s.StartTime)
	} else {
		st.Duration = st.CommandTime
	}
	return st
}

// Summary prints an overview of s.
func Summary(w io.Writer, s *trace.Session) {
	st := Summarize(s)
	fmt.Fprintf(w, "Session: %s\n", s.ID)
	fmt.Fprintf(w, "Host: %s\n", s.Hostname)
	if !s.StartTime.IsZero() {
		fmt.Fprintf(w, "Started: %s (%s)\n", timestamp(s.StartTime), humanize.Time(s.StartTime))
	}
	fmt.Fprintf(w, "Duration: %d seconds (%s)\n", int64(st.Duration.Seconds()), relDuration(st.Duration))
	fmt.Fprintf(w, "Total commands: %s\n", humanize.Comma(int64(st.Commands)))
	fmt.Fprintf(w, "Errors detected: %s\n", humanize.Comma(int64(st.Errors)))
	fmt.Fprintf(w, "Time in commands: %s\n", st.CommandTime.Round(time.Millisecond))
}

func relDuration(d time.Duration) string {
	base := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(base, base.Add(d), "", ""))
}

// WriteText writes the plain-text report of s.
func WriteText(w io.Writer, s *trace.Session) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Iris Report: %s\n", s.ID)
	b.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")
	for _, ev := range s.Events {
		fmt.Fprintf(&b, "[%s] $ %s\n", timestamp(ev.Timestamp), ev.Command)
		if ev.Output != "" {
			b.WriteString(ev.Output + "\n")
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Export writes the plain-text report of s to path.
func Export(path string, s *trace.Session) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := WriteText(f, s); err != nil {
		f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	return f.Close()
}
