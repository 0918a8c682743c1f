package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/iris/internal/trace"
)

// Hub fans committed events out to websocket watchers. Publishing never
// blocks: a full broadcast queue or a slow watcher drops messages.
type Hub struct {
	clients    map[string]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan []byte
	token      string
	mu         sync.RWMutex

	session   SessionMessage
	sessionMu sync.RWMutex
	events    atomic.Int64

	ctx     atomic.Pointer[context.Context]
	running atomic.Bool
}

type clientRegistration struct {
	client *Client
	hello  []byte
}

func New(token string) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		token:      token,
	}
}

// SetSession records the session watchers are told about when they connect.
func (h *Hub) SetSession(id, hostname string, start time.Time) {
	h.sessionMu.Lock()
	h.session = SessionMessage{
		Type:      MessageSession,
		SessionID: id,
		Hostname:  hostname,
		StartTime: start,
	}
	h.sessionMu.Unlock()
}

func (h *Hub) runContext() context.Context {
	if ctx := h.ctx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

func (h *Hub) Run(ctx context.Context) {
	h.ctx.Store(&ctx)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			h.mu.Unlock()
			if reg.hello != nil {
				select {
				case reg.client.send <- reg.hello:
				default:
				}
			}
			go reg.client.writePump(h.runContext())
			go reg.client.readPump(h.runContext())
			slog.Debug("watcher connected", "client", reg.client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			slog.Debug("watcher disconnected", "client", client.id, "total", h.ClientCount())

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- data:
				default:
					slog.Debug("watcher send buffer full, dropping message", "client", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}

	client := newClient(conn, h)

	h.sessionMu.RLock()
	hello := h.session
	h.sessionMu.RUnlock()
	hello.Type = MessageSession
	hello.Events = int(h.events.Load())
	data, _ := json.Marshal(hello)

	select {
	case h.register <- &clientRegistration{client: client, hello: data}:
	default:
		slog.Warn("hub not accepting watchers")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// PublishEvent queues ev for every connected watcher.
func (h *Hub) PublishEvent(ev trace.Event) {
	h.events.Add(1)

	h.sessionMu.RLock()
	id := h.session.SessionID
	h.sessionMu.RUnlock()

	data, err := json.Marshal(EventMessage{Type: MessageEvent, SessionID: id, Event: ev})
	if err != nil {
		slog.Warn("marshal event message failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Debug("broadcast channel full, dropping event", "event", ev.ID)
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	default:
		go func() {
			select {
			case h.unregister <- c:
			case <-h.runContext().Done():
			}
		}()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
