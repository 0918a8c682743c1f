package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/iris/internal/trace"
)

func startHub(t *testing.T, token string) (*Hub, *httptest.Server) {
	t.Helper()

	h := New(token)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return h, server
}

func feedURL(server *httptest.Server, token string) string {
	url := fmt.Sprintf("ws://%s/ws", server.URL[len("http://"):])
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func waitForClientCount(t *testing.T, h *Hub, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
}

func TestTokenAuthentication(t *testing.T) {
	validToken := "secret-token-123"

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid token", validToken, http.StatusSwitchingProtocols},
		{"invalid token", "wrong-token", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, server := startHub(t, validToken)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			conn, resp, err := websocket.Dial(ctx, feedURL(server, tt.token), nil)
			cancel()

			if resp != nil && resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusSwitchingProtocols && err != nil {
				t.Fatalf("dial: %v", err)
			}
			if conn != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}
		})
	}
}

func TestHelloCarriesSession(t *testing.T) {
	token := "test-token"
	h, server := startHub(t, token)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	h.SetSession("2024-05-01_10-00-00", "box", start)
	h.PublishEvent(trace.Event{ID: 1, Command: "ls"})

	conn := dial(t, feedURL(server, token))
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello SessionMessage
	readMessage(t, conn, &hello)
	if hello.Type != MessageSession || hello.SessionID != "2024-05-01_10-00-00" || hello.Hostname != "box" {
		t.Errorf("hello = %+v", hello)
	}
	if !hello.StartTime.Equal(start) {
		t.Errorf("hello.StartTime = %v, want %v", hello.StartTime, start)
	}
	if hello.Events != 1 {
		t.Errorf("hello.Events = %d, want 1", hello.Events)
	}
}

func TestPublishEventFanOut(t *testing.T) {
	token := "test-token"
	h, server := startHub(t, token)
	h.SetSession("s1", "box", time.Now())

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conns = append(conns, dial(t, feedURL(server, token)))
	}
	defer func() {
		for _, c := range conns {
			c.Close(websocket.StatusNormalClosure, "")
		}
	}()
	waitForClientCount(t, h, 2, time.Second)

	h.PublishEvent(trace.Event{ID: 7, Type: trace.EventTypeCommand, Command: "make test", ExitCode: 2})

	for i, conn := range conns {
		var hello SessionMessage
		readMessage(t, conn, &hello)
		if hello.Type != MessageSession {
			t.Fatalf("client %d first message type = %q, want %q", i, hello.Type, MessageSession)
		}

		var msg EventMessage
		readMessage(t, conn, &msg)
		if msg.Type != MessageEvent || msg.SessionID != "s1" {
			t.Errorf("client %d message = %+v", i, msg)
		}
		if msg.Event.ID != 7 || msg.Event.Command != "make test" || msg.Event.ExitCode != 2 {
			t.Errorf("client %d event = %+v", i, msg.Event)
		}
	}
}

func TestClientLifecycle(t *testing.T) {
	token := "test-token"
	h, server := startHub(t, token)

	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", h.ClientCount())
	}

	conn := dial(t, feedURL(server, token))
	waitForClientCount(t, h, 1, time.Second)

	// Watchers are receive-only; stray messages must not disconnect them.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"input"}`))
	cancel()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d after stray message, want 1", h.ClientCount())
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitForClientCount(t, h, 0, time.Second)
}

func TestPublishWithoutWatchersDoesNotBlock(t *testing.T) {
	h := New("token")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.PublishEvent(trace.Event{ID: i + 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishEvent blocked with no running hub")
	}
}

func TestSubscribe(t *testing.T) {
	token := "test-token"
	h, server := startHub(t, token)
	h.SetSession("s2", "box", time.Now())

	var (
		mu      sync.Mutex
		session SessionMessage
		events  []trace.Event
	)
	got := make(chan struct{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Subscribe(ctx, feedURL(server, token), Handlers{
			OnSession: func(m SessionMessage) {
				mu.Lock()
				session = m
				mu.Unlock()
				got <- struct{}{}
			},
			OnEvent: func(m EventMessage) {
				mu.Lock()
				events = append(events, m.Event)
				mu.Unlock()
				got <- struct{}{}
			},
		})
	}()

	waitForClientCount(t, h, 1, 2*time.Second)
	h.PublishEvent(trace.Event{ID: 1, Command: "whoami"})

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for feed messages")
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Subscribe() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if session.SessionID != "s2" {
		t.Errorf("session id = %q, want %q", session.SessionID, "s2")
	}
	if len(events) != 1 || events[0].Command != "whoami" {
		t.Errorf("events = %+v", events)
	}
}

func TestSubscribeRejectedToken(t *testing.T) {
	_, server := startHub(t, "right")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Subscribe(ctx, feedURL(server, "wrong"), Handlers{}); err == nil {
		t.Fatal("Subscribe() = nil, want dial error")
	}
}
