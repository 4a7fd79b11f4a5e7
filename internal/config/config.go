// Package config loads the optional YAML overrides file and supplies
// the default values for every command-line flag (spec section 6).
// Grounded on the teacher's config/salmon_config.go (SetDefaults +
// LoadConfig pattern), with the DurationString/SizeString custom YAML
// unmarshalers dropped: every duration and size here is a plain
// second-count or bit-count, so they add no value.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the optional rotated log file (--log-file).
type LogConfig struct {
	Filename   string `yaml:"filename,omitempty"`
	MaxSize    int    `yaml:"maxSize,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
	MaxAge     int    `yaml:"maxAge,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// ServerDefaults mirrors the `server` subcommand's flags.
type ServerDefaults struct {
	Listen                string `yaml:"listen,omitempty"`
	Forward                string `yaml:"forward,omitempty"`
	IdleSeconds            int    `yaml:"idle,omitempty"`
	KeepaliveSeconds       int    `yaml:"keepalive,omitempty"`
	WindowBits             int    `yaml:"bufsize,omitempty"`
	HoldTimeoutSeconds     int    `yaml:"holdTimeout,omitempty"`
	CollectIntervalSeconds int    `yaml:"holdCollectInterval,omitempty"`
	CtlListen              string `yaml:"ctlListen,omitempty"`
	RateLimitBytesPerSec   int64  `yaml:"rateLimitBytesPerSec,omitempty"`
}

// ClientDefaults mirrors the `client` subcommand's flags.
type ClientDefaults struct {
	IdleSeconds      int `yaml:"idle,omitempty"`
	KeepaliveSeconds int `yaml:"keepalive,omitempty"`
	WindowBits       int `yaml:"bufsize,omitempty"`
}

// Config is the optional on-disk override file, layered above flag
// defaults and under explicit flags.
type Config struct {
	Server *ServerDefaults `yaml:"server,omitempty"`
	Client *ClientDefaults `yaml:"client,omitempty"`
	Log    *LogConfig      `yaml:"log,omitempty"`
}

// SetDefaults fills in every zero-valued field with the defaults from
// spec section 6's flag table.
func (c *Config) SetDefaults() {
	if c.Server == nil {
		c.Server = &ServerDefaults{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "0.0.0.0:2222"
	}
	if c.Server.Forward == "" {
		c.Server.Forward = "localhost:22"
	}
	if c.Server.IdleSeconds == 0 {
		c.Server.IdleSeconds = 3
	}
	if c.Server.KeepaliveSeconds == 0 {
		c.Server.KeepaliveSeconds = 1
	}
	if c.Server.WindowBits == 0 {
		c.Server.WindowBits = 32
	}
	if c.Server.HoldTimeoutSeconds == 0 {
		c.Server.HoldTimeoutSeconds = 604800
	}
	if c.Server.CollectIntervalSeconds == 0 {
		c.Server.CollectIntervalSeconds = 60
	}
	if c.Server.CtlListen == "" {
		c.Server.CtlListen = "[::1]:50051"
	}

	if c.Client == nil {
		c.Client = &ClientDefaults{}
	}
	if c.Client.IdleSeconds == 0 {
		c.Client.IdleSeconds = 3
	}
	if c.Client.KeepaliveSeconds == 0 {
		c.Client.KeepaliveSeconds = 1
	}
	if c.Client.WindowBits == 0 {
		c.Client.WindowBits = 32
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 28
	}
}

// Load reads an optional YAML overrides file at path and fills in
// defaults for anything it leaves unset. A missing file is not an
// error: Load returns pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.SetDefaults()
				return &cfg, nil
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.SetDefaults()
	return &cfg, nil
}
