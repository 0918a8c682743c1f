package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/daemon"
	"github.com/user/iris/internal/pty"
	"github.com/user/iris/internal/trace"
)

// platformSupported gates the commands that need a pty. They fail before
// taking the lock or dialing a daemon.
var platformSupported = pty.Supported

func newRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record this terminal into a standalone session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !platformSupported {
				return pty.ErrUnsupportedPlatform
			}
			ctrl := a.ctrl
			if err := ctrl.Prepare(); err != nil {
				return err
			}
			a.clearStaleLock()
			if ctrl.LockExists() {
				if ctrl.DaemonRunning() {
					return errors.New("an iris daemon is recording; use `iris shell` to attach this terminal")
				}
				return errors.New("a recording is already active; run `iris stop` first")
			}
			traceDir, err := a.traceDirectory()
			if err != nil {
				return err
			}
			if err := ctrl.WriteLock(os.Getpid()); err != nil {
				return err
			}
			defer func() {
				if err := ctrl.ReleaseLock(); err != nil {
					slog.Warn("remove lock failed", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
			defer stop()
			ctx, cancel := ctrl.WatchStop(ctx, a.cfg.PollInterval)
			defer cancel()

			tl := trace.NewTimeline(time.Now())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "iris recording started (session %s).\r\n", tl.ID())
			fmt.Fprint(out, "Type 'exit' or press Ctrl+D to stop, or run `iris stop` from another terminal.\r\n")

			restore := quietWhileRecording()
			rec := &pty.Recorder{Shell: a.cfg.Shell, Sink: tl, PollInterval: a.cfg.PollInterval}
			runErr := rec.RunInteractive(ctx)
			restore()

			if runErr != nil && tl.Len() == 0 {
				return fmt.Errorf("record: %w", runErr)
			}

			sess := tl.Seal(time.Now())
			path := filepath.Join(traceDir, trace.FileName(sess.ID))
			if err := trace.Save(path, sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			if arc := a.openArchive(context.Background()); arc != nil {
				if err := arc.Import(context.Background(), path, sess); err != nil {
					slog.Warn("archive session failed", "error", err)
				}
				arc.Close()
			}
			fmt.Fprintf(out, "\n[iris] Session saved to %s (%d events)\n", path, len(sess.Events))
			return runErr
		},
	}
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "shell",
		Aliases: []string{"attach"},
		Short:   "Attach this terminal to the running iris daemon",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !platformSupported {
				return pty.ErrUnsupportedPlatform
			}
			dialCtx, cancelDial := context.WithTimeout(cmd.Context(), 2*time.Second)
			client, err := daemon.Dial(dialCtx, a.ctrl)
			cancelDial()
			if err != nil {
				if errors.Is(err, control.ErrNoDaemon) {
					return fmt.Errorf("%w; start one with `iris daemon`", err)
				}
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				select {
				case <-client.Done():
					cancel()
				case <-ctx.Done():
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprint(out, "iris: attached to the daemon. Type 'exit' or press Ctrl+D to detach.\r\n")

			restore := quietWhileRecording()
			rec := &pty.Recorder{Shell: a.cfg.Shell, Sink: client, PollInterval: a.cfg.PollInterval}
			runErr := rec.RunInteractive(ctx)
			restore()

			if errors.Is(runErr, daemon.ErrDaemonStopped) || errors.Is(client.Err(), daemon.ErrDaemonStopped) {
				fmt.Fprintln(out, "\n[iris] The daemon stopped; this terminal is no longer recorded.")
				return nil
			}
			if err := client.Err(); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintln(out, "\n[iris] Detached from the daemon.")
			return nil
		},
	}
}

func newDaemonCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the aggregation daemon that merges attached terminals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.clearStaleLock()
			if a.ctrl.LockExists() {
				return errors.New("a recording is already active; run `iris stop` first")
			}
			traceDir, err := a.traceDirectory()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := a.ctrl.WatchStop(ctx, a.cfg.PollInterval)
			defer cancel()

			opts := daemon.Options{
				Control:  a.ctrl,
				TraceDir: traceDir,
				Grace:    a.cfg.ShutdownGrace,
			}
			if a.cfg.WatchEnabled {
				opts.WatchAddr = a.cfg.WatchAddr
			}
			if arc := a.openArchive(ctx); arc != nil {
				defer arc.Close()
				opts.Archive = arc
			}

			d := daemon.New(opts)
			out := cmd.OutOrStdout()
			go func() {
				select {
				case <-d.Ready():
				case <-ctx.Done():
					return
				}
				fmt.Fprintf(out, "iris daemon listening on %s (session %s)\n", d.Addr(), d.Timeline().ID())
				fmt.Fprintln(out, "Run `iris shell` in other terminals to attach them.")
				if _, err := a.ctrl.ReadWatch(); err == nil {
					fmt.Fprintln(out, "Run `iris watch` to follow the timeline live.")
				}
				fmt.Fprintln(out, "Run `iris stop` or press Ctrl+C to finish and save.")
			}()

			sess, err := d.Run(ctx)
			if sess != nil && err == nil {
				fmt.Fprintf(out, "[iris] Session saved to %s (%d events)\n", d.TracePath(), len(sess.Events))
			}
			return err
		},
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording from any terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			a.clearStaleLock()
			if !a.ctrl.LockExists() {
				fmt.Fprintln(out, "No active iris recording found.")
				return nil
			}
			if err := a.ctrl.RequestStop(); err != nil {
				return fmt.Errorf("request stop: %w", err)
			}
			fmt.Fprintln(out, "Stop signal sent. The recording will end within a second.")
			return nil
		},
	}
}
