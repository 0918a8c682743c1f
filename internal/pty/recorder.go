//go:build !windows

package pty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/user/iris/internal/capture"
)

// Supported reports whether interactive recording works on this platform.
const Supported = true

// Recorder runs the user's shell under a PTY and captures its commands into
// Sink while the real terminal is in raw mode.
type Recorder struct {
	Shell        string
	Dir          string
	Sink         capture.Sink
	Stdin        *os.File
	Stdout       *os.File
	PollInterval time.Duration
}

// RunInteractive records until the shell exits, stdin closes, or ctx is
// cancelled. The terminal mode is restored before it returns.
func (r *Recorder) RunInteractive(ctx context.Context) error {
	if r.Sink == nil {
		return errors.New("pty: recorder needs a sink")
	}
	stdin, stdout := r.Stdin, r.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("pty: stdin is not a terminal")
	}

	shellCtx, cancelShell := context.WithCancel(context.Background())
	defer cancelShell()

	sess, err := Start(shellCtx, StartOptions{Shell: r.Shell, Dir: r.Dir})
	if err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	defer sess.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()
	go func() {
		for range winch {
			if err := sess.InheritSize(stdin); err != nil {
				slog.Debug("resize pty failed", "error", err)
			}
		}
	}()
	winch <- syscall.SIGWINCH

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() {
		if err := term.Restore(fd, oldState); err != nil {
			slog.Warn("restore terminal failed", "error", err)
		}
	}()

	driver := &Driver{
		Keyboard:     stdin,
		Display:      stdout,
		Terminal:     sess.File(),
		Machine:      capture.New(r.Sink),
		PollInterval: r.PollInterval,
	}
	return driver.Run(ctx)
}
