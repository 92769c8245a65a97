// Package config loads the keytap YAML settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
)

const maxConfigFileBytes int64 = 64 << 10

// Bounds applied to the timing fields; values outside are clamped.
const (
	minTimeout = 100 * time.Millisecond
	maxTimeout = time.Minute
	minPoll    = 10 * time.Millisecond
	maxPoll    = time.Second
	minPress   = 50 * time.Millisecond
	maxPress   = 5 * time.Second
)

// Config is keytap runtime configuration.
type Config struct {
	// Device pins the raw-device backend to one node. Empty means discovery.
	Device       string        `yaml:"device"`
	JoinTimeout  time.Duration `yaml:"join_timeout"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogPath      string        `yaml:"log_path"`
	TUI          bool          `yaml:"tui"`
	// Chord is a combination such as "ctrl+shift+57" to report taps and
	// holds of. Empty disables it.
	Chord        string        `yaml:"chord"`
	LongPress    time.Duration `yaml:"long_press"`
}

// userConfigDirFn is a test seam.
var userConfigDirFn = os.UserConfigDir

var warnings struct {
	mu   sync.Mutex
	msgs []string
}

func warnf(format string, args ...any) {
	warnings.mu.Lock()
	warnings.msgs = append(warnings.msgs, fmt.Sprintf(format, args...))
	warnings.mu.Unlock()
}

// ConsumeWarnings returns and clears the warnings recorded by Load. Config is
// read before logging starts, so the caller logs them afterwards.
func ConsumeWarnings() []string {
	warnings.mu.Lock()
	defer warnings.mu.Unlock()
	out := warnings.msgs
	warnings.msgs = nil
	return out
}

func DefaultConfig() Config {
	return Config{
		JoinTimeout:  5 * time.Second,
		StartTimeout: 5 * time.Second,
		PollInterval: 100 * time.Millisecond,
		LongPress:    350 * time.Millisecond,
	}
}

// DefaultPath is <UserConfigDir>/keytap/config.yaml, or "" when the config
// directory cannot be resolved.
func DefaultPath() string {
	base, err := userConfigDirFn()
	if err != nil {
		warnf("config dir unavailable: %v", err)
		return ""
	}
	return filepath.Join(base, "keytap", "config.yaml")
}

// Load reads path. A missing or empty file yields defaults. KEYTAP_DEVICE
// overrides the device field.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := readLimitedFile(path, maxConfigFileBytes)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		case len(raw) > 0:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if dev := strings.TrimSpace(os.Getenv("KEYTAP_DEVICE")); dev != "" {
		cfg.Device = dev
	}
	applyDefaultsAndValidate(&cfg)
	return cfg, nil
}

func applyDefaultsAndValidate(cfg *Config) {
	def := DefaultConfig()
	cfg.Device = strings.TrimSpace(cfg.Device)
	cfg.LogPath = strings.TrimSpace(cfg.LogPath)
	cfg.JoinTimeout = clamp("join_timeout", cfg.JoinTimeout, def.JoinTimeout, minTimeout, maxTimeout)
	cfg.StartTimeout = clamp("start_timeout", cfg.StartTimeout, def.StartTimeout, minTimeout, maxTimeout)
	cfg.PollInterval = clamp("poll_interval", cfg.PollInterval, def.PollInterval, minPoll, maxPoll)
	cfg.Chord = strings.TrimSpace(cfg.Chord)
	cfg.LongPress = clamp("long_press", cfg.LongPress, def.LongPress, minPress, maxPress)
}

func clamp(name string, v, def, lo, hi time.Duration) time.Duration {
	switch {
	case v == 0:
		return def
	case v < lo:
		warnf("%s %s below minimum, using %s", name, v, lo)
		return lo
	case v > hi:
		warnf("%s %s above maximum, using %s", name, v, hi)
		return hi
	}
	return v
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}
