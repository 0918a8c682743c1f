//go:build !windows

package pty

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/iris/internal/capture"
	"github.com/user/iris/internal/trace"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingSink struct{}

func (failingSink) Deliver(trace.Event) error { return errors.New("connection lost") }

// fakeTerminal stands in for a shell behind a PTY: it echoes keystrokes and
// answers every newline with "\r\nhi\r\n$ ".
type fakeTerminal struct {
	keyboard *os.File // test writes keystrokes here
	display  *syncBuffer

	driver  *Driver
	closers []*os.File
}

func newFakeTerminal(t *testing.T, sink capture.Sink) *fakeTerminal {
	t.Helper()

	kbR, kbW := mustPipe(t)
	outR, outW := mustPipe(t)
	inR, inW := mustPipe(t)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := inR.Read(buf)
			for _, c := range buf[:n] {
				if c == '\n' || c == '\r' {
					_, _ = outW.Write([]byte("\r\nhi\r\n$ "))
					continue
				}
				_, _ = outW.Write([]byte{c})
			}
			if err != nil {
				return
			}
		}
	}()

	ft := &fakeTerminal{
		keyboard: kbW,
		display:  &syncBuffer{},
		closers:  []*os.File{kbR, kbW, outR, outW, inR, inW},
	}
	ft.driver = &Driver{
		Keyboard:      kbR,
		Display:       ft.display,
		Terminal:      outR,
		TerminalInput: inW,
		Machine:       capture.New(sink),
		PollInterval:  10 * time.Millisecond,
	}
	t.Cleanup(func() {
		for _, f := range ft.closers {
			_ = f.Close()
		}
	})
	return ft
}

func mustPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	return r, w
}

func (ft *fakeTerminal) typeKeys(t *testing.T, s string) {
	t.Helper()
	if _, err := ft.keyboard.Write([]byte(s)); err != nil {
		t.Fatalf("write keys: %v", err)
	}
}

func (ft *fakeTerminal) waitDisplay(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(ft.display.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("display = %q, never contained %q", ft.display.String(), want)
}

func runDriver(ctx context.Context, d *Driver) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
		return nil
	}
}

func TestDriverEchoHiEndToEnd(t *testing.T) {
	tl := trace.NewTimeline(time.Now())
	ft := newFakeTerminal(t, tl)
	done := runDriver(context.Background(), ft.driver)

	ft.typeKeys(t, "echo hi")
	ft.waitDisplay(t, "echo hi")
	ft.typeKeys(t, "\n")
	ft.waitDisplay(t, "$ ")
	_ = ft.keyboard.Close()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	if got := ft.display.String(); got != "echo hi\r\nhi\r\n$ " {
		t.Errorf("display = %q, want %q", got, "echo hi\r\nhi\r\n$ ")
	}

	events := tl.Snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.ID != 1 || ev.Command != "echo hi" || ev.Output != "hi" || ev.ExitCode != 0 {
		t.Errorf("event = %+v, want id 1, command %q, output %q, exit 0", ev, "echo hi", "hi")
	}
}

func TestDriverStopsOnContextCancel(t *testing.T) {
	tl := trace.NewTimeline(time.Now())
	ft := newFakeTerminal(t, tl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runDriver(ctx, ft.driver)

	ft.typeKeys(t, "ls")
	ft.waitDisplay(t, "ls")
	ft.typeKeys(t, "\r")
	ft.waitDisplay(t, "$ ")
	cancel()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if tl.Len() != 1 {
		t.Fatalf("events = %d, want 1", tl.Len())
	}
	if got := tl.Snapshot()[0].Command; got != "ls" {
		t.Errorf("command = %q, want %q", got, "ls")
	}
}

func TestDriverReturnsSinkError(t *testing.T) {
	ft := newFakeTerminal(t, failingSink{})
	done := runDriver(context.Background(), ft.driver)

	ft.typeKeys(t, "pwd")
	ft.waitDisplay(t, "pwd")
	ft.typeKeys(t, "\n")
	ft.waitDisplay(t, "$ ")
	ft.typeKeys(t, "x")

	if err := waitRun(t, done); err == nil {
		t.Fatal("Run() = nil, want sink error")
	}
}

func TestDriverNoCommandNoEvent(t *testing.T) {
	tl := trace.NewTimeline(time.Now())
	ft := newFakeTerminal(t, tl)
	done := runDriver(context.Background(), ft.driver)

	ft.typeKeys(t, "unfinished")
	ft.waitDisplay(t, "unfinished")
	_ = ft.keyboard.Close()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if tl.Len() != 0 {
		t.Errorf("events = %d, want 0", tl.Len())
	}
}
