package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/user/iris/internal/hub"
)

// Server exposes the live feed over HTTP on a loopback listener.
type Server struct {
	hub        *hub.Hub
	token      string
	listener   net.Listener
	httpServer *http.Server
}

// New binds addr right away so the caller can publish URL before serving.
func New(addr string, h *hub.Hub, token string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for watchers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)

	return &Server{
		hub:      h,
		token:    token,
		listener: ln,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// URL is the websocket address watchers dial, token included.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s/ws?token=%s", s.listener.Addr().String(), s.token)
}

// Start serves until ctx is cancelled, then shuts the HTTP server down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Debug("live feed listening", "addr", s.listener.Addr().String())
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
