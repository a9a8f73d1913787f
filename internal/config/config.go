package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvAddress overrides the server address sessions connect to.
const EnvAddress = "SCOPECOMMS_ADDR"

// Config holds all configurable scopecomms settings.
type Config struct {
	Address          string   `toml:"address"`          // where sessions connect
	Listen           string   `toml:"listen"`           // server TCP listen address
	WebSocketListen  string   `toml:"websocket_listen"` // server ws listen address, empty disables
	MetricsListen    string   `toml:"metrics_listen"`   // empty disables /metrics
	ConnectTimeoutMS int      `toml:"connect_timeout_ms"`
	ReconnectDelayMS int      `toml:"reconnect_delay_ms"`
	WriteTimeoutMS   int      `toml:"write_timeout_ms"`
	FlushThreshold   int      `toml:"flush_threshold"`
	MaxBuffered      int      `toml:"max_buffered"`
	HistorySize      int      `toml:"history_size"`
	LogLevel         string   `toml:"log_level"`
	CaptureDir       string   `toml:"capture_dir"` // empty means the XDG data dir
	IgnorePatterns   []string `toml:"ignore_patterns"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Address:          "127.0.0.1:6100",
		Listen:           "127.0.0.1:6100",
		ConnectTimeoutMS: 1000,
		ReconnectDelayMS: 500,
		WriteTimeoutMS:   2000,
		FlushThreshold:   4 << 10,
		MaxBuffered:      1 << 20,
		HistorySize:      1024,
		LogLevel:         "info",
		IgnorePatterns:   []string{},
	}
}

func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// LoadGlobal reads ~/.config/scopecomms/config.toml.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "scopecomms", "config.toml")
	return loadFile(path, true)
}

// LoadProject reads .scopecomms.toml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".scopecomms.toml", false)
}

// loadFile reads and parses a TOML config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

func overlay(dst *Config, src *Config) {
	if src == nil {
		return
	}
	str := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	num := func(d *int, s int) {
		if s > 0 {
			*d = s
		}
	}
	str(&dst.Address, src.Address)
	str(&dst.Listen, src.Listen)
	str(&dst.WebSocketListen, src.WebSocketListen)
	str(&dst.MetricsListen, src.MetricsListen)
	str(&dst.LogLevel, src.LogLevel)
	str(&dst.CaptureDir, src.CaptureDir)
	num(&dst.ConnectTimeoutMS, src.ConnectTimeoutMS)
	num(&dst.ReconnectDelayMS, src.ReconnectDelayMS)
	num(&dst.WriteTimeoutMS, src.WriteTimeoutMS)
	num(&dst.FlushThreshold, src.FlushThreshold)
	num(&dst.MaxBuffered, src.MaxBuffered)
	num(&dst.HistorySize, src.HistorySize)
	if len(src.IgnorePatterns) > 0 {
		dst.IgnorePatterns = src.IgnorePatterns
	}
}

// ApplyEnv overrides values from the environment.
func ApplyEnv(cfg *Config) {
	if addr := os.Getenv(EnvAddress); addr != "" {
		cfg.Address = addr
	}
}

// Load resolves the effective configuration: defaults, then the global file,
// then the project file, then the environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Defaults(), err
	}
	project, err := LoadProject()
	if err != nil {
		return Defaults(), err
	}
	cfg := Merge(global, project)
	ApplyEnv(&cfg)
	return cfg, nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
