// Package config loads the TOML configuration of the neptunium command.
package config

import (
	"log/slog"
	"neptunium/application"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Config struct {
	Network string
	Path    string
	Bind    application.BindMode
	Host    string
	Port    uint16

	Credential       string
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string

	LogLevel slog.Level
}

func Default() Config {
	return Config{
		Network:  application.NetworkTCP,
		Path:     "/neptunium",
		Bind:     application.BindLocal,
		Host:     "127.0.0.1",
		Port:     7777,
		LogLevel: slog.LevelInfo,
	}
}

type fileConfig struct {
	Network          string `toml:"network"`
	Path             string `toml:"path"`
	Bind             string `toml:"bind"`
	Host             string `toml:"host"`
	Port             int64  `toml:"port"`
	Credential       string `toml:"credential"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	DialTimeout      string `toml:"dial_timeout"`
	MetricsAddr      string `toml:"metrics_addr"`
	LogLevel         string `toml:"log_level"`
}

// Load reads path on top of [Default]. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "loading config")
	}
	return apply(Default(), raw, meta)
}

// Parse is like [Load] but reads the TOML document from data.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("network") {
		cfg.Network = strings.TrimSpace(raw.Network)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("bind") {
		mode, err := application.ParseBindMode(strings.TrimSpace(raw.Bind))
		if err != nil {
			return Config{}, err
		}
		cfg.Bind = mode
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if raw.Port < 0 || raw.Port > 65535 {
			return Config{}, errors.Errorf("port %d out of range", raw.Port)
		}
		cfg.Port = uint16(raw.Port)
	}
	if meta.IsDefined("credential") {
		cfg.Credential = raw.Credential
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing handshake_timeout")
		}
		cfg.HandshakeTimeout = d
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing dial_timeout")
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, errors.Wrap(err, "parsing log_level")
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Network {
	case application.NetworkTCP, application.NetworkWS:
	default:
		return errors.Errorf("unknown network %q", c.Network)
	}
	if c.Network == application.NetworkWS && !strings.HasPrefix(c.Path, "/") {
		return errors.Errorf("websocket path %q must start with a slash", c.Path)
	}
	if c.HandshakeTimeout < 0 || c.DialTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Application returns the facade configuration described by c.
func (c Config) Application(logger *slog.Logger) application.Config {
	cfg := application.Config{
		Network:     c.Network,
		Path:        c.Path,
		DialTimeout: c.DialTimeout,
		Logger:      logger,
	}
	cfg.Server.HandshakeTimeout = c.HandshakeTimeout
	return cfg
}
