//go:build !windows

package pty

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/user/iris/internal/capture"
)

// DefaultPollInterval bounds how long the driver waits for either side to
// become readable before it re-checks ctx.
const DefaultPollInterval = 200 * time.Millisecond

// Driver multiplexes a keyboard and a PTY master in one goroutine, feeding
// the capture machine and echoing PTY output to the display.
type Driver struct {
	Keyboard *os.File
	Display  io.Writer

	// Terminal is the readable side of the PTY master. TerminalInput
	// receives keystrokes and defaults to Terminal.
	Terminal      *os.File
	TerminalInput io.Writer

	Machine      *capture.Machine
	PollInterval time.Duration
}

// Run loops until ctx is done or either side hits EOF or a hard error, then
// performs the final commit. Only sink failures are returned; I/O endings are
// the normal way a recording stops.
func (d *Driver) Run(ctx context.Context) error {
	err := d.loop(ctx)
	if finishErr := d.Machine.Finish(); finishErr != nil && err == nil {
		err = finishErr
	}
	return err
}

func (d *Driver) loop(ctx context.Context) error {
	interval := d.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	input := d.TerminalInput
	if input == nil {
		input = d.Terminal
	}

	fds := []unix.PollFd{
		{Fd: int32(d.Keyboard.Fd()), Events: unix.POLLIN},
		{Fd: int32(d.Terminal.Fd()), Events: unix.POLLIN},
	}
	keys := make([]byte, 1024)
	out := make([]byte, 4096)
	timeout := int(interval / time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("capture loop stopped", "reason", ctx.Err())
			return nil
		default:
		}

		fds[0].Revents, fds[1].Revents = 0, 0
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			slog.Debug("capture loop poll failed", "error", err)
			return nil
		}
		if n == 0 {
			continue
		}

		// Drain PTY output before keystrokes so output belonging to the
		// running command is attributed before the next key commits it.
		if fds[1].Revents != 0 {
			m, err := d.Terminal.Read(out)
			if m > 0 {
				if _, werr := d.Display.Write(out[:m]); werr != nil {
					slog.Debug("display write failed", "error", werr)
					return nil
				}
				d.Machine.Output(out[:m])
			}
			if err != nil {
				if !isClosed(err) {
					slog.Debug("pty read failed", "error", err)
				}
				return nil
			}
			if m == 0 {
				return nil
			}
		}

		if fds[0].Revents != 0 {
			m, err := d.Keyboard.Read(keys)
			if m > 0 {
				if kerr := d.Machine.Key(keys[:m]); kerr != nil {
					return kerr
				}
				if _, werr := input.Write(keys[:m]); werr != nil {
					slog.Debug("pty write failed", "error", werr)
					return nil
				}
			}
			if err != nil {
				if !isClosed(err) {
					slog.Debug("keyboard read failed", "error", err)
				}
				return nil
			}
			if m == 0 {
				return nil
			}
		}
	}
}

// isClosed reports the errors that mean the other side went away: EOF on a
// pipe or keyboard, EIO on a Linux PTY master whose child exited.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}
