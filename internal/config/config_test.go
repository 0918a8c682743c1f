package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ControlDir != filepath.Join(home, ".iris") {
		t.Errorf("ControlDir = %q, want %q", cfg.ControlDir, filepath.Join(home, ".iris"))
	}
	if cfg.ArchivePath != filepath.Join(home, ".iris", "archive.db") {
		t.Errorf("ArchivePath = %q", cfg.ArchivePath)
	}
	if cfg.ConfigPath != filepath.Join(home, ".config", "iris", "config.yaml") {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
	if cfg.ShutdownGrace != DefaultShutdownGrace || cfg.PollInterval != DefaultPollInterval || cfg.ReplayDelay != DefaultReplayDelay {
		t.Errorf("durations = %v %v %v", cfg.ShutdownGrace, cfg.PollInterval, cfg.ReplayDelay)
	}
	if !cfg.WatchEnabled || cfg.WatchAddr != DefaultWatchAddr {
		t.Errorf("watch = %v %q", cfg.WatchEnabled, cfg.WatchAddr)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() error = nil, want error for missing explicit file")
	}
}

func TestLoadFromYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
control_dir: ~/state/iris
trace_dir: /tmp/traces
archive_path: "off"
shell: zsh -l
watch_enabled: false
shutdown_grace: 5s
poll_interval: 100ms
replay_delay: 0s
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ControlDir != filepath.Join(home, "state", "iris") {
		t.Errorf("ControlDir = %q, want %q", cfg.ControlDir, filepath.Join(home, "state", "iris"))
	}
	if cfg.TraceDir != "/tmp/traces" {
		t.Errorf("TraceDir = %q, want /tmp/traces", cfg.TraceDir)
	}
	if cfg.ArchiveEnabled() {
		t.Error("ArchiveEnabled() = true, want false")
	}
	if cfg.Shell != "zsh -l" {
		t.Errorf("Shell = %q, want %q", cfg.Shell, "zsh -l")
	}
	if cfg.WatchEnabled {
		t.Error("WatchEnabled = true, want false")
	}
	if cfg.ShutdownGrace != 5*time.Second || cfg.PollInterval != 100*time.Millisecond || cfg.ReplayDelay != 0 {
		t.Errorf("durations = %v %v %v", cfg.ShutdownGrace, cfg.PollInterval, cfg.ReplayDelay)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.WatchAddr != DefaultWatchAddr {
		t.Errorf("WatchAddr = %q, want default kept", cfg.WatchAddr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		content string
	}{
		{"negative grace", "shutdown_grace: -1s\n"},
		{"zero poll", "poll_interval: 0s\n"},
		{"slow poll", "poll_interval: 3s\n"},
		{"negative replay", "replay_delay: -5ms\n"},
		{"bad level", "log_level: loud\n"},
		{"bad yaml", "control_dir: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatalf("Load(%q) error = nil, want error", tt.content)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolvedTraceDir(t *testing.T) {
	cfg := &Config{TraceDir: "/data/traces"}
	if got, _ := cfg.ResolvedTraceDir(); got != "/data/traces" {
		t.Errorf("ResolvedTraceDir() = %q, want /data/traces", got)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	cfg.TraceDir = ""
	if got, _ := cfg.ResolvedTraceDir(); got != wd {
		t.Errorf("ResolvedTraceDir() = %q, want %q", got, wd)
	}
}
