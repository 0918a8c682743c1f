// Package runner records a single non-interactive command.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/daemon"
	"github.com/user/iris/internal/parser"
	"github.com/user/iris/internal/trace"
)

const (
	ExitNotFound    = 127
	ExitInterrupted = 130
	exitStartFailed = 1

	deliverTimeout = 2 * time.Second
)

type Options struct {
	// Stdout receives the combined output live. Defaults to os.Stdout.
	Stdout   io.Writer
	Control  *control.Dir
	TraceDir string
	Archive  daemon.Archiver
	Now      func() time.Time
}

// Result describes what happened to the command and its event.
type Result struct {
	ExitCode int
	// Event is nil when the command text was blank after cleaning.
	Event *trace.Event
	// TracePath is set when the event was saved as its own session.
	TracePath string
	// Delivered is true when the event went to a running daemon.
	Delivered bool
}

// Run executes args, streams its combined output, and records one event
// carrying the real exit status. Interrupting ctx stops the child and
// records exit status 130.
func Run(ctx context.Context, args []string, opts Options) (*Result, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	start := opts.Now()
	output, code := execute(ctx, args, opts.Stdout)
	end := opts.Now()

	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	ev := parser.BuildEvent(parser.BuildInput{
		RawInput:  shellquote.Join(args...),
		RawOutput: output,
		Duration:  end.Sub(start),
		Timestamp: end,
	})

	res := &Result{ExitCode: code, Event: ev}
	if ev == nil {
		return res, nil
	}
	ev.ExitCode = code

	if opts.Control != nil && opts.Control.DaemonRunning() {
		if err := deliver(opts.Control, *ev); err != nil {
			return res, err
		}
		res.Delivered = true
		return res, nil
	}

	path, err := saveSession(start, end, *ev, opts)
	if err != nil {
		return res, err
	}
	res.TracePath = path
	return res, nil
}

func execute(ctx context.Context, args []string, stdout io.Writer) (string, int) {
	var captured bytes.Buffer
	out := io.MultiWriter(stdout, &captured)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	switch {
	case err == nil:
		return captured.String(), 0
	case ctx.Err() != nil:
		captured.WriteString("\n^C\n")
		return captured.String(), ExitInterrupted
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return captured.String(), code
		}
		return captured.String(), exitStartFailed
	}

	fmt.Fprintf(stdout, "Error running command: %v\n", err)
	captured.WriteString(err.Error())
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return captured.String(), ExitNotFound
	}
	return captured.String(), exitStartFailed
}

func deliver(ctrl *control.Dir, ev trace.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	c, err := daemon.Dial(ctx, ctrl)
	if err != nil {
		return fmt.Errorf("send to daemon: %w", err)
	}
	defer c.Close()
	if err := c.Deliver(ev); err != nil {
		return fmt.Errorf("send to daemon: %w", err)
	}
	return nil
}

func saveSession(start, end time.Time, ev trace.Event, opts Options) (string, error) {
	tl := trace.NewTimeline(start)
	tl.Commit(ev)
	sess := tl.Seal(end)

	path := filepath.Join(opts.TraceDir, trace.FileName(sess.ID))
	if err := trace.Save(path, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	if opts.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opts.Archive.Import(ctx, path, sess); err != nil {
			slog.Warn("archive session failed", "error", err)
		}
	}
	return path, nil
}
