package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/iris/internal/config"
	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/db"
)

// ExitError carries a specific process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	controlDir string
	traceDir   string
	level      string

	cfg  *config.Config
	ctrl *control.Dir
}

func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "iris",
		Short: "Record terminal sessions as searchable command/output timelines",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/iris/config.yaml)")
	flags.StringVar(&a.controlDir, "control-dir", "", "directory for discovery, stop and lock files")
	flags.StringVar(&a.traceDir, "trace-dir", "", "directory for .trace files (default: working directory)")
	flags.StringVar(&a.level, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newRecordCmd(a),
		newDaemonCmd(a),
		newShellCmd(a),
		newStopCmd(a),
		newRunCmd(a),
		newSearchCmd(a),
		newReplayCmd(a),
		newSummaryCmd(a),
		newExportCmd(a),
		newSessionsCmd(a),
		newWatchCmd(a),
	)
	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("control-dir") {
		cfg.ControlDir = a.controlDir
	}
	if cmd.Flags().Changed("trace-dir") {
		cfg.TraceDir = a.traceDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logLevel.Set(level)

	a.cfg = cfg
	a.ctrl = control.New(cfg.ControlDir)
	slog.Debug("config loaded", "path", cfg.ConfigPath, "control_dir", cfg.ControlDir)
	return nil
}

func (a *app) traceDirectory() (string, error) {
	dir, err := a.cfg.ResolvedTraceDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create trace directory: %w", err)
	}
	return dir, nil
}

// openArchive returns nil when archiving is off or the database cannot be
// opened; recordings never fail because of the archive.
func (a *app) openArchive(ctx context.Context) *archive {
	if !a.cfg.ArchiveEnabled() {
		return nil
	}
	database, err := db.Open(ctx, a.cfg.ArchivePath)
	if err != nil {
		slog.Warn("session archive unavailable", "path", a.cfg.ArchivePath, "error", err)
		return nil
	}
	slog.Debug("session archive opened", "path", database.Path())
	return &archive{DB: database, SessionRepo: db.NewSessionRepo(database.SQL())}
}

// mustArchive is openArchive for commands that only read the archive.
func (a *app) mustArchive(ctx context.Context) (*archive, error) {
	if !a.cfg.ArchiveEnabled() {
		return nil, fmt.Errorf("the session archive is disabled (archive_path: %s)", a.cfg.ArchivePath)
	}
	database, err := db.Open(ctx, a.cfg.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("open session archive: %w", err)
	}
	return &archive{DB: database, SessionRepo: db.NewSessionRepo(database.SQL())}, nil
}

type archive struct {
	*db.DB
	*db.SessionRepo
}

// clearStaleLock removes control files left behind by a recorder that died
// without cleaning up.
func (a *app) clearStaleLock() {
	if !a.ctrl.LockStale() {
		return
	}
	slog.Warn("removing stale recording lock", "dir", a.ctrl.Root())
	if err := a.ctrl.ClearStale(); err != nil {
		slog.Warn("clear stale control files failed", "error", err)
	}
}

// notifyInterrupt cancels the returned context on Ctrl+C or SIGTERM.
func notifyInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
