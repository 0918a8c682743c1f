package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/hub"
	"github.com/user/iris/internal/server"
	"github.com/user/iris/internal/trace"
)

const (
	DefaultAddr  = "127.0.0.1:0"
	DefaultGrace = 2 * time.Second

	acceptTimeout = time.Second
	readTimeout   = time.Second
)

// State is the daemon lifecycle position.
type State int32

const (
	StateInitializing State = iota
	StateListening
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Archiver receives every sealed session. Failures are logged only.
type Archiver interface {
	Import(ctx context.Context, tracePath string, s *trace.Session) error
}

type Options struct {
	Control  *control.Dir
	TraceDir string
	// Addr defaults to DefaultAddr. It must stay on loopback.
	Addr string
	// WatchAddr enables the live feed when non-empty.
	WatchAddr string
	Grace     time.Duration
	Archive   Archiver
	Now       func() time.Time
}

// Daemon merges events from attached terminals into one timeline.
type Daemon struct {
	opts Options

	state    atomic.Int32
	ready    chan struct{}
	addr     net.Addr
	timeline *trace.Timeline
	feed     *hub.Hub
	path     string

	shutting atomic.Bool
	wg       sync.WaitGroup
	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
}

func New(opts Options) *Daemon {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Daemon{
		opts:  opts,
		ready: make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}
}

func (d *Daemon) State() State { return State(d.state.Load()) }

// Ready is closed once the daemon is accepting connections.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr is valid after Ready.
func (d *Daemon) Addr() net.Addr { return d.addr }

// Timeline is valid after Ready.
func (d *Daemon) Timeline() *trace.Timeline { return d.timeline }

// TracePath is the file the session was written to, valid after Run.
func (d *Daemon) TracePath() string { return d.path }

// Run initializes, serves until ctx is cancelled, then drains, persists and
// cleans up. The sealed session is returned even when persisting fails.
func (d *Daemon) Run(ctx context.Context) (*trace.Session, error) {
	d.state.Store(int32(StateInitializing))
	ctrl := d.opts.Control

	if err := ctrl.Prepare(); err != nil {
		return nil, fmt.Errorf("prepare control dir: %w", err)
	}
	if err := ctrl.ClearStale(); err != nil {
		return nil, fmt.Errorf("clear stale control files: %w", err)
	}

	ln, err := net.Listen("tcp", d.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	d.addr = ln.Addr()
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listen: unexpected address %s", ln.Addr())
	}
	if err := ctrl.PublishPort(tcpAddr.Port); err != nil {
		ln.Close()
		return nil, err
	}
	if err := ctrl.WriteLock(os.Getpid()); err != nil {
		ln.Close()
		_ = ctrl.Cleanup()
		return nil, err
	}

	d.timeline = trace.NewTimeline(d.opts.Now())
	host := trace.Hostname()

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	if d.opts.WatchAddr != "" {
		if err := d.startFeed(feedCtx, host); err != nil {
			slog.Warn("live feed disabled", "error", err)
		}
	}

	d.state.Store(int32(StateListening))
	close(d.ready)
	slog.Info("daemon listening", "addr", d.addr.String(), "session", d.timeline.ID())

	d.acceptLoop(ctx, ln)

	d.state.Store(int32(StateShuttingDown))
	d.shutting.Store(true)
	ln.Close()
	if err := ctrl.ReleaseLock(); err != nil {
		slog.Warn("release lock failed", "error", err)
	}
	d.drain()

	sess := d.timeline.Seal(d.opts.Now())
	persistErr := d.persist(sess)

	stopFeed()
	if err := ctrl.Cleanup(); err != nil {
		slog.Warn("remove control files failed", "error", err)
	}
	d.state.Store(int32(StateTerminated))
	return sess, persistErr
}

func (d *Daemon) startFeed(ctx context.Context, host string) error {
	token := uuid.NewString()
	feed := hub.New(token)
	feed.SetSession(d.timeline.ID(), host, d.timeline.Start())

	srv, err := server.New(d.opts.WatchAddr, feed, token)
	if err != nil {
		return err
	}
	go feed.Run(ctx)
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Warn("live feed stopped", "error", err)
		}
	}()
	if err := d.opts.Control.PublishWatch(srv.URL()); err != nil {
		return err
	}
	d.feed = feed
	return nil
}

func (d *Daemon) acceptLoop(ctx context.Context, ln net.Listener) {
	tcp, _ := ln.(*net.TCPListener)
	for {
		if ctx.Err() != nil {
			return
		}
		if tcp != nil {
			_ = tcp.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				slog.Warn("accept failed", "error", err)
				time.Sleep(50 * time.Millisecond)
			}
			continue
		}

		d.track(conn)
		d.wg.Add(1)
		go d.handle(conn)
	}
}

func (d *Daemon) track(conn net.Conn) {
	d.connMu.Lock()
	d.conns[conn] = struct{}{}
	d.connMu.Unlock()
	slog.Debug("terminal attached", "remote", conn.RemoteAddr().String())
}

func (d *Daemon) untrack(conn net.Conn) {
	d.connMu.Lock()
	delete(d.conns, conn)
	d.connMu.Unlock()
}

// drain waits for handlers to reach EOF, forcing connections closed once
// the grace period is over.
func (d *Daemon) drain() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(d.opts.Grace):
	}

	d.connMu.Lock()
	slog.Debug("grace period over, closing terminals", "open", len(d.conns))
	for conn := range d.conns {
		conn.Close()
	}
	d.connMu.Unlock()
	<-done
}

func (d *Daemon) handle(conn net.Conn) {
	defer d.wg.Done()
	defer d.untrack(conn)
	defer conn.Close()

	var pending []byte
	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			pending = d.consume(append(pending, buf[:n]...))
		}
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if errors.Is(err, io.EOF) {
			d.record(pending)
		} else if !d.shutting.Load() {
			slog.Debug("terminal read failed", "error", err)
		}
		slog.Debug("terminal detached", "remote", conn.RemoteAddr().String())
		return
	}
}

// consume commits every complete record in buf and returns the remainder.
func (d *Daemon) consume(buf []byte) []byte {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return buf
		}
		d.record(buf[:i])
		buf = buf[i+1:]
	}
}

func (d *Daemon) record(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}

	var ev trace.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		slog.Debug("discarding malformed record", "error", err)
		return
	}
	if strings.TrimSpace(ev.Command) == "" {
		slog.Debug("discarding record without command")
		return
	}
	if ev.Type == "" {
		ev.Type = trace.EventTypeCommand
	}

	ev = d.timeline.Commit(ev)
	if d.feed != nil {
		d.feed.PublishEvent(ev)
	}
	slog.Debug("event committed", "id", ev.ID, "command", ev.Command)
}

func (d *Daemon) persist(sess *trace.Session) error {
	d.path = filepath.Join(d.opts.TraceDir, trace.FileName(sess.ID))
	if err := trace.Save(d.path, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if d.opts.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.opts.Archive.Import(ctx, d.path, sess); err != nil {
			slog.Warn("archive session failed", "error", err)
		}
	}
	slog.Info("session saved", "path", d.path, "events", len(sess.Events))
	return nil
}
