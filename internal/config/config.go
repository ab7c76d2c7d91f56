// Package config parses epu.toml recorder configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load.
const FileName = "epu.toml"

// EnvConfig names the environment variable that points at a config file.
const EnvConfig = "EPU_CONFIG"

// DefaultAccentColor is the default TUI accent color (indigo).
const DefaultAccentColor = "#7D56F4"

// DefaultBaseURL is the ECNU electricity service.
const DefaultBaseURL = "https://epay.ecnu.edu.cn/epaycas/electric"

// hexColorRe matches a 6-digit hex color string like "#7D56F4".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Config is the top-level epu.toml configuration.
type Config struct {
	Storage       StorageConfig       `toml:"storage"`
	Poll          PollConfig          `toml:"poll"`
	Upstream      UpstreamConfig      `toml:"upstream"`
	Log           LogConfig           `toml:"log"`
	Notifications NotificationsConfig `toml:"notifications"`
	TUI           TUIConfig           `toml:"tui"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// StorageConfig locates the recorder's directories. Empty values are filled
// by ResolveDirs.
type StorageConfig struct {
	DataDir   string `toml:"data_dir"`
	ConfigDir string `toml:"config_dir"`
	LogDir    string `toml:"log_dir"`
}

// PollConfig controls the sampling loop.
type PollConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
}

// UpstreamConfig controls the ECNU client.
type UpstreamConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LogConfig controls the rolling server log.
type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL             string  `toml:"url"`
	Threshold       float32 `toml:"threshold"` // 0 = no low-degree alerts
	IntervalMinutes int     `toml:"interval_minutes"`
	OnAuth          bool    `toml:"on_auth"`
	OnStop          bool    `toml:"on_stop"`
}

// TUIConfig controls the terminal UI appearance.
type TUIConfig struct {
	AccentColor string `toml:"accent_color"`
}

// PollInterval returns poll.interval_seconds as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// PollTimeout returns poll.timeout_seconds as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Poll.TimeoutSeconds) * time.Second
}

// UpstreamTimeout returns upstream.timeout_seconds as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// NotifyInterval returns notifications.interval_minutes as a duration.
func (c *Config) NotifyInterval() time.Duration {
	return time.Duration(c.Notifications.IntervalMinutes) * time.Minute
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Poll.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval_seconds must be > 0"))
	}
	if c.Poll.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("poll.timeout_seconds must be > 0"))
	}

	u, parseErr := url.ParseRequestURI(c.Upstream.BaseURL)
	if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("upstream.base_url must be a valid http or https URL"))
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout_seconds must be > 0"))
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error"))
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be > 0"))
	}
	if c.Log.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log.max_backups must be >= 0 (0 = keep all)"))
	}
	if c.Log.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("log.max_age_days must be >= 0 (0 = keep forever)"))
	}

	if c.TUI.AccentColor != "" && !hexColorRe.MatchString(c.TUI.AccentColor) {
		errs = append(errs, fmt.Errorf("tui.accent_color must be a hex color (e.g. \"#7D56F4\")"))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}
	if c.Notifications.Threshold < 0 {
		errs = append(errs, fmt.Errorf("notifications.threshold must be >= 0 (0 = disabled)"))
	}
	if c.Notifications.IntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("notifications.interval_minutes must be >= 0"))
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with the built-in defaults. Directories are left
// empty for ResolveDirs.
func Defaults() Config {
	return Config{
		Poll: PollConfig{
			IntervalSeconds: 10,
			TimeoutSeconds:  15,
		},
		Upstream: UpstreamConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: 20,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		Notifications: NotificationsConfig{
			Threshold:       10,
			IntervalMinutes: 30,
			OnAuth:          true,
			OnStop:          false,
		},
		TUI: TUIConfig{
			AccentColor: DefaultAccentColor,
		},
	}
}

// Load reads the configuration. With an empty path it uses $EPU_CONFIG, then
// ./epu.toml, then epu.toml in the user config directory, and falls back to
// the defaults when none exists. An explicitly named file must exist.
// Unknown keys (likely typos) are an error. Directories are resolved before
// returning.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = findConfig()
	}

	cfg := Defaults()
	if path != "" {
		path = ExpandHome(path)
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, joinKeys(keys))
		}
		cfg.Path = path
	}

	if err := cfg.ResolveDirs(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// findConfig returns the first existing candidate config file, or "".
func findConfig() string {
	candidates := []string{FileName}
	if dir, err := defaultConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, FileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// InitFile writes a default epu.toml template to the given directory.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create %s: %w", dir, err)
	}

	content := `# epu.toml: ECNU power usage recorder configuration

[storage]
data_dir = ""    # room logs and archives (empty = ~/.local/share/ecnu-power-usage)
config_dir = ""  # room.toml, credentials.toml, poll-state.json (empty = ~/.config/ecnu-power-usage)
log_dir = ""     # server.log (empty = <data_dir>/logs)

[poll]
interval_seconds = 10
timeout_seconds = 15   # upper bound for one sample

[upstream]
base_url = "https://epay.ecnu.edu.cn/epaycas/electric"
timeout_seconds = 20

[log]
level = "info"         # debug, info, warn, error; EPU_LOG overrides
max_size_mb = 20
max_backups = 7
max_age_days = 30

[notifications]
url = ""               # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
threshold = 10.0       # alert when the remaining degree drops below this (0 = off)
interval_minutes = 30  # minimum time between two low-degree alerts
on_auth = true         # alert when the credentials are rejected
on_stop = false        # alert when polling stops

[tui]
accent_color = "#7D56F4"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
