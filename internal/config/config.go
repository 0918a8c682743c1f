package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWatchAddr     = "127.0.0.1:0"
	DefaultShutdownGrace = 2 * time.Second
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultReplayDelay   = 500 * time.Millisecond
	DefaultLogLevel      = "info"
)

type Config struct {
	// ControlDir holds the discovery, stop, lock and watch files.
	ControlDir string `yaml:"control_dir"`
	// TraceDir receives <session>.trace files. Empty means the working
	// directory.
	TraceDir string `yaml:"trace_dir"`
	// ArchivePath is the sqlite archive. "off" disables archiving.
	ArchivePath   string        `yaml:"archive_path"`
	Shell         string        `yaml:"shell"`
	WatchAddr     string        `yaml:"watch_addr"`
	WatchEnabled  bool          `yaml:"watch_enabled"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ReplayDelay   time.Duration `yaml:"replay_delay"`
	LogLevel      string        `yaml:"log_level"`

	// ConfigPath is where the file was (or would have been) read from.
	ConfigPath string `yaml:"-"`
}

// ArchiveDisabled is the archive_path value that turns archiving off.
const ArchiveDisabled = "off"

// DefaultPath is ~/.config/iris/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "iris", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &Config{
		ControlDir:    filepath.Join(homeDir, ".iris"),
		ArchivePath:   filepath.Join(homeDir, ".iris", "archive.db"),
		WatchAddr:     DefaultWatchAddr,
		WatchEnabled:  true,
		ShutdownGrace: DefaultShutdownGrace,
		PollInterval:  DefaultPollInterval,
		ReplayDelay:   DefaultReplayDelay,
		LogLevel:      DefaultLogLevel,
	}, nil
}

// Load applies the yaml file at path over the defaults. An empty path means
// DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg.ConfigPath = path

	if err := cfg.loadFromFile(); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.ConfigPath, err)
	}
	c.ControlDir = expandHome(c.ControlDir)
	c.TraceDir = expandHome(c.TraceDir)
	c.ArchivePath = expandHome(c.ArchivePath)
	return nil
}

// Validate rejects values no command could work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ControlDir) == "" {
		return fmt.Errorf("invalid config: control_dir must not be empty")
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("invalid config: shutdown_grace %s must not be negative", c.ShutdownGrace)
	}
	if c.PollInterval <= 0 || c.PollInterval > time.Second {
		return fmt.Errorf("invalid config: poll_interval %s must be in (0, 1s]", c.PollInterval)
	}
	if c.ReplayDelay < 0 {
		return fmt.Errorf("invalid config: replay_delay %s must not be negative", c.ReplayDelay)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ArchiveEnabled reports whether sealed sessions go to the archive.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchivePath != "" && c.ArchivePath != ArchiveDisabled
}

// ResolvedTraceDir returns TraceDir, or the working directory when unset.
func (c *Config) ResolvedTraceDir() (string, error) {
	if c.TraceDir != "" {
		return c.TraceDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, strings.TrimPrefix(p, "~"))
}
