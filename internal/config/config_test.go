package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"poll.interval_seconds", cfg.Poll.IntervalSeconds, 10},
		{"poll.timeout_seconds", cfg.Poll.TimeoutSeconds, 15},
		{"upstream.base_url", cfg.Upstream.BaseURL, DefaultBaseURL},
		{"upstream.timeout_seconds", cfg.Upstream.TimeoutSeconds, 20},
		{"log.level", cfg.Log.Level, "info"},
		{"log.max_size_mb", cfg.Log.MaxSizeMB, 20},
		{"notifications.url", cfg.Notifications.URL, ""},
		{"notifications.threshold", cfg.Notifications.Threshold, float32(10)},
		{"notifications.interval_minutes", cfg.Notifications.IntervalMinutes, 30},
		{"tui.accent_color", cfg.TUI.AccentColor, DefaultAccentColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDurations(t *testing.T) {
	cfg := Defaults()
	if got := cfg.PollInterval(); got != 10*time.Second {
		t.Errorf("PollInterval = %v", got)
	}
	if got := cfg.PollTimeout(); got != 15*time.Second {
		t.Errorf("PollTimeout = %v", got)
	}
	if got := cfg.UpstreamTimeout(); got != 20*time.Second {
		t.Errorf("UpstreamTimeout = %v", got)
	}
	if got := cfg.NotifyInterval(); got != 30*time.Minute {
		t.Errorf("NotifyInterval = %v", got)
	}
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		dir := t.TempDir()
		content := `
[storage]
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"
config_dir = "` + filepath.ToSlash(filepath.Join(dir, "conf")) + `"

[poll]
interval_seconds = 60

[upstream]
base_url = "http://127.0.0.1:8080/electric"

[log]
level = "debug"

[notifications]
url = "https://ntfy.sh/dorm"
threshold = 5.5
`
		path := filepath.Join(dir, FileName)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Path != path {
			t.Errorf("Path = %q, want %q", cfg.Path, path)
		}
		if cfg.Poll.IntervalSeconds != 60 {
			t.Errorf("interval = %d, want 60", cfg.Poll.IntervalSeconds)
		}
		if cfg.Poll.TimeoutSeconds != 15 {
			t.Errorf("timeout should keep its default, got %d", cfg.Poll.TimeoutSeconds)
		}
		if cfg.Upstream.BaseURL != "http://127.0.0.1:8080/electric" {
			t.Errorf("base_url = %q", cfg.Upstream.BaseURL)
		}
		if cfg.Notifications.Threshold != 5.5 {
			t.Errorf("threshold = %v, want 5.5", cfg.Notifications.Threshold)
		}
		if want := filepath.Join(dir, "data", "logs"); filepath.Clean(cfg.Storage.LogDir) != want {
			t.Errorf("log_dir = %q, want %q", cfg.Storage.LogDir, want)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("unknown keys", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, FileName)
		if err := os.WriteFile(path, []byte("[poll]\ninterval_secs = 5\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "poll.interval_secs") {
			t.Fatalf("expected unknown key error, got %v", err)
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, FileName)
		if err := os.WriteFile(path, []byte("[poll\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("explicit missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Fatal("expected error for missing explicit config")
		}
	})
}

func TestLoadLookup(t *testing.T) {
	t.Run("env var", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.toml")
		if err := os.WriteFile(path, []byte("[poll]\ninterval_seconds = 42\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvConfig, path)
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Poll.IntervalSeconds != 42 {
			t.Errorf("interval = %d, want 42", cfg.Poll.IntervalSeconds)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[poll]\ninterval_seconds = 7\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvConfig, "")
		t.Chdir(dir)
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Poll.IntervalSeconds != 7 {
			t.Errorf("interval = %d, want 7", cfg.Poll.IntervalSeconds)
		}
	})

	t.Run("defaults when nothing found", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(EnvConfig, "")
		t.Setenv("HOME", home)
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
		t.Setenv("XDG_DATA_HOME", filepath.Join(home, "share"))
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Path != "" {
			t.Errorf("Path = %q, want empty", cfg.Path)
		}
		if want := filepath.Join(home, "share", AppName); cfg.Storage.DataDir != want {
			t.Errorf("data_dir = %q, want %q", cfg.Storage.DataDir, want)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero interval", func(c *Config) { c.Poll.IntervalSeconds = 0 }, "poll.interval_seconds"},
		{"zero timeout", func(c *Config) { c.Poll.TimeoutSeconds = 0 }, "poll.timeout_seconds"},
		{"bad base url", func(c *Config) { c.Upstream.BaseURL = "ftp://x" }, "upstream.base_url"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"negative backups", func(c *Config) { c.Log.MaxBackups = -1 }, "log.max_backups"},
		{"bad accent", func(c *Config) { c.TUI.AccentColor = "indigo" }, "tui.accent_color"},
		{"bad notify url", func(c *Config) { c.Notifications.URL = "not a url" }, "notifications.url"},
		{"negative threshold", func(c *Config) { c.Notifications.Threshold = -1 }, "notifications.threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}

	t.Run("joins all problems", func(t *testing.T) {
		cfg := Defaults()
		cfg.Poll.IntervalSeconds = 0
		cfg.Log.Level = "loud"
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "poll.interval_seconds") || !strings.Contains(err.Error(), "log.level") {
			t.Errorf("Validate() = %v, want both problems", err)
		}
	})
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
		{"/abs/path", "/abs/path"},
		{"rel/~", "rel/~"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandHome(tt.in); got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitFile(t *testing.T) {
	dir := t.TempDir()
	path, err := InitFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, FileName) {
		t.Errorf("path = %q", path)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template should load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("template should validate: %v", err)
	}

	if _, err := InitFile(dir); err == nil {
		t.Error("second InitFile should fail")
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Defaults()
	cfg.Storage = StorageConfig{
		DataDir:   filepath.Join(root, "d"),
		ConfigDir: filepath.Join(root, "c"),
		LogDir:    filepath.Join(root, "l"),
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{cfg.Storage.DataDir, cfg.Storage.ConfigDir, cfg.Storage.LogDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("%s not created", d)
		}
	}
}
