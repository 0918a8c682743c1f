package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/trace"
)

var (
	// ErrDaemonLost means the connection failed while the daemon was
	// still supposed to be running.
	ErrDaemonLost = errors.New("lost connection to iris daemon")
	// ErrDaemonStopped means the daemon shut down in an orderly way.
	ErrDaemonStopped = errors.New("iris daemon stopped")
)

const (
	defaultWriteTimeout = time.Second
	lockPollInterval    = 200 * time.Millisecond
)

// Client sends one terminal's events to the daemon. It has no local
// buffer: a failed write is the end of this terminal's recording.
type Client struct {
	conn net.Conn
	ctrl *control.Dir

	WriteTimeout time.Duration

	writeMu sync.Mutex
	done    chan struct{}
	endErr  error
	endOnce sync.Once
}

// Dial connects to the daemon advertised in ctrl. It fails with
// control.ErrNoDaemon when no daemon is recording.
func Dial(ctx context.Context, ctrl *control.Dir) (*Client, error) {
	if !ctrl.LockExists() {
		return nil, control.ErrNoDaemon
	}
	port, err := ctrl.ReadPort()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", control.ErrNoDaemon, err)
	}

	c := &Client{
		conn:         conn,
		ctrl:         ctrl,
		WriteTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// Deliver writes ev as one newline-terminated JSON record.
func (c *Client) Deliver(ev trace.Event) error {
	select {
	case <-c.done:
		return c.endErr
	default:
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	if _, err := c.conn.Write(data); err != nil {
		c.end(c.classify(err))
		return c.endErr
	}
	return nil
}

// Done is closed when the daemon goes away, orderly or not.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why Done was closed: ErrDaemonStopped or ErrDaemonLost.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.endErr
	default:
		return nil
	}
}

// Close ends the connection; the daemon sees EOF.
func (c *Client) Close() error {
	c.end(ErrDaemonStopped)
	return c.conn.Close()
}

// watch notices the daemon ending. The daemon never writes, so any read
// result other than a timeout means the connection is gone; a vanished lock
// means shutdown has begun and this side should hang up.
func (c *Client) watch() {
	buf := make([]byte, 64)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(lockPollInterval))
		_, err := c.conn.Read(buf)
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if !c.ctrl.LockExists() {
				slog.Debug("daemon is shutting down, detaching")
				c.end(ErrDaemonStopped)
				c.conn.Close()
				return
			}
			continue
		}
		c.end(c.classify(err))
		return
	}
}

func (c *Client) classify(err error) error {
	if !c.ctrl.LockExists() {
		return ErrDaemonStopped
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: connection closed", ErrDaemonLost)
	}
	return fmt.Errorf("%w: %v", ErrDaemonLost, err)
}

func (c *Client) end(err error) {
	c.endOnce.Do(func() {
		c.endErr = err
		close(c.done)
	})
}
