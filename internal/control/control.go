// Package control manages the per-user directory through which iris
// processes find each other: the daemon's discovery file, the stop marker
// and the recording lock.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	PortFile  = "daemon.port"
	StopFile  = "stop.signal"
	LockFile  = "recording.lock"
	WatchFile = "daemon.watch"
)

var ErrNoDaemon = errors.New("no iris daemon is running")

// Dir is a control directory rooted at an explicit path.
type Dir struct {
	root string
}

// DefaultRoot returns ~/.iris.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".iris"), nil
}

func New(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, name)
}

// Prepare creates the directory if needed.
func (d *Dir) Prepare() error {
	if err := os.MkdirAll(d.root, 0o700); err != nil {
		return fmt.Errorf("create control directory %q: %w", d.root, err)
	}
	return nil
}

// ClearStale removes control files left behind by a previous process.
func (d *Dir) ClearStale() error {
	return d.remove(PortFile, StopFile, LockFile, WatchFile)
}

// Cleanup removes every control file. It is called once at shutdown.
func (d *Dir) Cleanup() error {
	return d.remove(PortFile, StopFile, LockFile, WatchFile)
}

// ReleaseLock removes the lock and any pending stop request. Standalone
// recordings call it instead of Cleanup so a daemon's files are untouched.
func (d *Dir) ReleaseLock() error {
	return d.remove(StopFile, LockFile)
}

func (d *Dir) remove(names ...string) error {
	var errs []error
	for _, name := range names {
		if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dir) write(name, value string) error {
	if err := d.Prepare(); err != nil {
		return err
	}
	if err := os.WriteFile(d.path(name), []byte(value), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (d *Dir) read(name string) (string, error) {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (d *Dir) exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

// PublishPort writes the discovery file.
func (d *Dir) PublishPort(port int) error {
	return d.write(PortFile, strconv.Itoa(port))
}

// ReadPort returns the daemon's port, or ErrNoDaemon when the discovery
// file does not exist.
func (d *Dir) ReadPort() (int, error) {
	raw, err := d.read(PortFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoDaemon
		}
		return 0, fmt.Errorf("read %s: %w", PortFile, err)
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q in %s", raw, PortFile)
	}
	return port, nil
}

// DaemonRunning reports whether a discovery file is present.
func (d *Dir) DaemonRunning() bool {
	return d.exists(PortFile)
}

// WriteLock records pid as the owner of the active recording.
func (d *Dir) WriteLock(pid int) error {
	return d.write(LockFile, strconv.Itoa(pid))
}

// ReadLock returns the pid stored in the lock marker.
func (d *Dir) ReadLock() (int, error) {
	raw, err := d.read(LockFile)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", LockFile, err)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q in %s", raw, LockFile)
	}
	return pid, nil
}

// LockExists reports whether a recording (daemon or standalone) is active.
func (d *Dir) LockExists() bool {
	return d.exists(LockFile)
}

// LockStale reports whether a lock exists whose owner process is gone.
func (d *Dir) LockStale() bool {
	if !d.LockExists() {
		return false
	}
	pid, err := d.ReadLock()
	if err != nil {
		return true
	}
	return !processAlive(pid)
}

// RequestStop creates the stop marker.
func (d *Dir) RequestStop() error {
	return d.write(StopFile, "stop")
}

// StopRequested reports whether the stop marker exists.
func (d *Dir) StopRequested() bool {
	return d.exists(StopFile)
}

// ConsumeStop removes the stop marker and reports whether it was present.
func (d *Dir) ConsumeStop() bool {
	err := os.Remove(d.path(StopFile))
	return err == nil
}

// PublishWatch writes the live feed URL.
func (d *Dir) PublishWatch(url string) error {
	return d.write(WatchFile, url)
}

// ReadWatch returns the live feed URL, or ErrNoDaemon when none is published.
func (d *Dir) ReadWatch() (string, error) {
	raw, err := d.read(WatchFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoDaemon
		}
		return "", fmt.Errorf("read %s: %w", WatchFile, err)
	}
	return raw, nil
}

// WatchStop returns a context that is cancelled when parent is done or when
// the stop marker appears. The marker is consumed when observed.
func (d *Dir) WatchStop(parent context.Context, interval time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.ConsumeStop() {
					slog.Info("stop signal received", "dir", d.root)
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}
