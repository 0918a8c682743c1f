package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/daemon"
	"github.com/user/iris/internal/trace"
)

func standaloneOptions(t *testing.T, out *bytes.Buffer) Options {
	t.Helper()
	root := t.TempDir()
	return Options{
		Stdout:   out,
		Control:  control.New(filepath.Join(root, "ctl")),
		TraceDir: filepath.Join(root, "traces"),
	}
}

func TestRunSavesStandaloneSession(t *testing.T) {
	var out bytes.Buffer
	opts := standaloneOptions(t, &out)

	res, err := Run(context.Background(), []string{"sh", "-c", "echo hello"}, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if out.String() != "hello\n" {
		t.Errorf("live output = %q, want %q", out.String(), "hello\n")
	}
	if res.Delivered || res.TracePath == "" {
		t.Fatalf("result = %+v, want a saved trace", res)
	}

	s, err := trace.Load(res.TracePath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(s.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(s.Events))
	}
	ev := s.Events[0]
	if ev.ID != 1 || ev.Command != "sh -c 'echo hello'" || ev.Output != "hello" || ev.ExitCode != 0 {
		t.Errorf("event = %+v", ev)
	}
	if filepath.Base(res.TracePath) != trace.FileName(s.ID) {
		t.Errorf("trace file %q does not match session %q", res.TracePath, s.ID)
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{name: "success", args: []string{"true"}, wantCode: 0},
		{name: "real status kept", args: []string{"sh", "-c", "echo fine; exit 3"}, wantCode: 3},
		{name: "error text does not override success", args: []string{"sh", "-c", "echo error: none"}, wantCode: 0},
		{name: "not found", args: []string{"iris-definitely-missing-binary"}, wantCode: ExitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res, err := Run(context.Background(), tt.args, standaloneOptions(t, &out))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if res.Event == nil || res.Event.ExitCode != tt.wantCode {
				t.Errorf("Event = %+v, want exit code %d", res.Event, tt.wantCode)
			}
		})
	}
}

func TestRunInterrupted(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, []string{"sleep", "5"}, standaloneOptions(t, &out))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != ExitInterrupted {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, ExitInterrupted)
	}
	if res.Event == nil || res.Event.Output != "^C" {
		t.Errorf("Event = %+v, want output ^C", res.Event)
	}
}

func TestRunRedactsSecrets(t *testing.T) {
	var out bytes.Buffer
	res, err := Run(context.Background(), []string{"sh", "-c", "echo password=hunter2"}, standaloneOptions(t, &out))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(res.Event.Command, "hunter2") || strings.Contains(res.Event.Output, "hunter2") {
		t.Errorf("secret leaked into event %+v", res.Event)
	}
	if res.Event.Output != "[REDACTED]" {
		t.Errorf("Output = %q, want [REDACTED]", res.Event.Output)
	}
	if !strings.Contains(out.String(), "hunter2") {
		t.Errorf("live output = %q, want it unredacted", out.String())
	}
}

func TestRunNoArgs(t *testing.T) {
	if _, err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("Run(nil) error = nil, want error")
	}
}

func TestRunDeliversToDaemon(t *testing.T) {
	root := t.TempDir()
	ctrl := control.New(filepath.Join(root, "ctl"))
	d := daemon.New(daemon.Options{Control: ctrl, TraceDir: filepath.Join(root, "daemon-traces")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *trace.Session, 1)
	go func() {
		s, _ := d.Run(ctx)
		done <- s
	}()
	select {
	case <-d.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never became ready")
	}

	var out bytes.Buffer
	res, err := Run(context.Background(), []string{"sh", "-c", "echo via-daemon; exit 4"}, Options{
		Stdout:   &out,
		Control:  ctrl,
		TraceDir: filepath.Join(root, "unused"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Delivered || res.TracePath != "" {
		t.Fatalf("result = %+v, want delivered without a local trace", res)
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.Timeline().Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	var s *trace.Session
	select {
	case s = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if s == nil || len(s.Events) != 1 {
		t.Fatalf("daemon session = %+v, want one event", s)
	}
	if ev := s.Events[0]; ev.Output != "via-daemon" || ev.ExitCode != 4 {
		t.Errorf("daemon event = %+v", ev)
	}
}
