package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/iris/internal/hub"
	"github.com/user/iris/internal/trace"
)

func TestServerServesLiveFeed(t *testing.T) {
	h := hub.New("tok")
	h.SetSession("s1", "box", time.Now())

	srv, err := New("127.0.0.1:0", h, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if url := srv.URL(); !strings.HasPrefix(url, "ws://127.0.0.1:") || !strings.HasSuffix(url, "/ws?token=tok") {
		t.Fatalf("URL() = %q", url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.Start(ctx) }()

	events := make(chan trace.Event, 1)
	subCtx, subCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer subCancel()
	go func() {
		_ = hub.Subscribe(subCtx, srv.URL(), hub.Handlers{
			OnEvent: func(m hub.EventMessage) { events <- m.Event },
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.PublishEvent(trace.Event{ID: 3, Command: "uptime"})

	select {
	case ev := <-events:
		if ev.ID != 3 || ev.Command != "uptime" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Start() = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
