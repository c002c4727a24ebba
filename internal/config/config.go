package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session struct {
		DefaultDuration string `yaml:"default_duration"`
	} `yaml:"session"`
	Sweep  Sweep `yaml:"sweep"`
	Log    Log   `yaml:"log"`
	Limits struct {
		AccessCodeRPS   float64 `yaml:"access_code_rps"`
		AccessCodeBurst int     `yaml:"access_code_burst"`
	} `yaml:"ratelimit"`
}

// Sweep configures the background reconciliation.
type Sweep struct {
	Enabled         *bool  `yaml:"enabled"`
	SessionInterval string `yaml:"session_interval"`
	AttemptInterval string `yaml:"attempt_interval"`
	MaxRetries      *int   `yaml:"max_retries"`
	RecordTimeout   string `yaml:"record_timeout"`
	LockTTL         string `yaml:"lock_ttl"`
}

// Log configures zap output. File is optional; when set, JSON lines are rotated there.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads YAML config from path. An empty path yields the zero config.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SweepEnabled defaults to true when unset.
func (s Sweep) SweepEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Retries returns the per-record retry budget, defaulting to 3 when unset. Zero disables retries.
func (s Sweep) Retries() int {
	if s.MaxRetries == nil {
		return 3
	}
	if *s.MaxRetries < 0 {
		return 0
	}
	return *s.MaxRetries
}
