package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	DB     DBConfig     `toml:"db"`
	Drops  DropsConfig  `toml:"drops"`
	Seed   SeedConfig   `toml:"seed"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DBConfig struct {
	Path           string `toml:"path"`
	BusyTimeoutMS  int64  `toml:"busy_timeout_ms"`
	MaxOpenConns   int    `toml:"max_open_conns"`
	MaxIdleConns   int    `toml:"max_idle_conns"`
}

type DropsConfig struct {
	ClaimTTLHours   int   `toml:"claim_ttl_hours"`
	SweepIntervalMS int64 `toml:"sweep_interval_ms"`
}

// SeedConfig supplies the fingerprint components for priority scoring.
// DeployedAtMS may be zero, in which case process start time is used; the
// coefficients then change on restart, which is acceptable because scores are
// only compared within a deployment.
type SeedConfig struct {
	ProjectID       string `toml:"project_id"`
	FirstActivityMS int64  `toml:"first_activity_ms"`
	DeployedAtMS    int64  `toml:"deployed_at_ms"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a runnable config for local use without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./dropspot.db"
	}
	if c.DB.BusyTimeoutMS <= 0 {
		c.DB.BusyTimeoutMS = 5000
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 20
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 20
	}
	if c.Drops.ClaimTTLHours <= 0 {
		c.Drops.ClaimTTLHours = 24
	}
	if c.Drops.SweepIntervalMS <= 0 {
		c.Drops.SweepIntervalMS = 1000
	}
	if c.Seed.ProjectID == "" {
		c.Seed.ProjectID = "dropspot"
	}
}

func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.Drops.ClaimTTLHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Drops.SweepIntervalMS) * time.Millisecond
}
