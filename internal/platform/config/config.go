// Package config loads the custody server configuration from a YAML file
// with environment-variable overrides for deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Database struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		Path   string `yaml:"path"`   // sqlite file path
		DSN    string `yaml:"dsn"`    // postgres connection string
		// Connection pool tuning
		MaxOpenConns int `yaml:"max_open_conns"`
		MaxIdleConns int `yaml:"max_idle_conns"`
	} `yaml:"database"`

	Redis struct {
		Addr string `yaml:"addr"` // empty disables the cache
	} `yaml:"redis"`

	Custody struct {
		// TickRate is the wall-clock length of one simulated-time unit.
		// The wall-clock poll driver runs on the same period.
		TickRate time.Duration `yaml:"tick_rate"`
		// GlobalMultiplier scales every derived sentence.
		GlobalMultiplier float64 `yaml:"global_multiplier"`
	} `yaml:"custody"`

	Network struct {
		ClientSendBuffer int `yaml:"client_send_buffer"`
	} `yaml:"network"`
}

// Default returns sensible production defaults.
func Default() *Config {
	cfg := &Config{ListenAddr: ":8080"}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "custody.db"
	cfg.Database.MaxOpenConns = 8
	cfg.Database.MaxIdleConns = 4
	cfg.Custody.TickRate = time.Minute
	cfg.Custody.GlobalMultiplier = 1.0
	cfg.Network.ClientSendBuffer = 256
	return cfg
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Custody.TickRate <= 0 {
		cfg.Custody.TickRate = time.Minute
	}
	if cfg.Custody.GlobalMultiplier <= 0 {
		cfg.Custody.GlobalMultiplier = 1.0
	}
	if cfg.Network.ClientSendBuffer <= 0 {
		cfg.Network.ClientSendBuffer = 256
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CUSTODY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CUSTODY_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CUSTODY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CUSTODY_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CUSTODY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CUSTODY_TICK_RATE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Custody.TickRate = d
		}
	}
}
