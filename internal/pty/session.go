//go:build !windows

package pty

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
)

// Session wraps a child process running inside a PTY.
type Session struct {
	createdAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	exited  chan struct{}
	waitErr error

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// StartOptions describes the process to run inside the PTY.
type StartOptions struct {
	// Shell is resolved with ShellArgv. Ignored when Argv is set.
	Shell string
	Argv  []string
	Dir   string
	Env   []string
	Cols  uint16
	Rows  uint16
}

// Start spawns the shell inside a new PTY. A zero size leaves the kernel
// default; callers normally copy the real terminal's size with InheritSize.
// Cancelling ctx kills the child.
func Start(ctx context.Context, opts StartOptions) (*Session, error) {
	argv := opts.Argv
	if len(argv) == 0 {
		var err error
		if argv, err = ShellArgv(opts.Shell); err != nil {
			return nil, err
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}

	var (
		ptmx *os.File
		err  error
	)
	if opts.Cols > 0 && opts.Rows > 0 {
		ptmx, err = creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	} else {
		ptmx, err = creackpty.Start(cmd)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{
		createdAt: time.Now(),
		cmd:       cmd,
		ptmx:      ptmx,
		exited:    make(chan struct{}),
	}
	go s.waitExit()
	return s, nil
}

// waitExit reaps the child and marks the session closed for writes.
func (s *Session) waitExit() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.closed = true
	s.waitErr = err
	s.mu.Unlock()

	close(s.exited)
}

// File returns the PTY master.
func (s *Session) File() *os.File { return s.ptmx }

// Fd returns the PTY master descriptor.
func (s *Session) Fd() int { return int(s.ptmx.Fd()) }

// Exited is closed once the child process has been reaped.
func (s *Session) Exited() <-chan struct{} { return s.exited }

// Wait blocks until the child exits and returns its wait error.
func (s *Session) Wait() error {
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Read reads child output from the PTY master.
func (s *Session) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

// Write sends data to the PTY (and therefore to the child process's stdin).
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New("pty: session is closed")
	}
	return s.ptmx.Write(data)
}

// Resize changes the PTY window size.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("pty: session is closed")
	}
	return creackpty.Setsize(s.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows})
}

// InheritSize copies the window size of the terminal behind from.
func (s *Session) InheritSize(from *os.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("pty: session is closed")
	}
	return creackpty.InheritSize(from, s.ptmx)
}

// Close hangs up the child process and closes the PTY fd. It waits briefly
// for the child to exit. It is safe to call Close multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGHUP)
		}

		err = s.ptmx.Close()

		select {
		case <-s.exited:
		case <-time.After(2 * time.Second):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
	return err
}
