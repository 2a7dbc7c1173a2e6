package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.multichat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Timing         Timing `toml:"timing"`
}

// Timing holds the simulation delays in milliseconds. Zero fields fall back
// to the built-in defaults.
type Timing struct {
	ConfirmMinMS    int64 `toml:"confirm_min_ms"`
	ConfirmMaxMS    int64 `toml:"confirm_max_ms"`
	CountdownMS     int64 `toml:"countdown_ms"`
	DeliveryDelayMS int64 `toml:"delivery_delay_ms"`
}

// ConfirmMin returns the configured lower bound for link confirmation, or
// zero when unset.
func (t Timing) ConfirmMin() time.Duration { return time.Duration(t.ConfirmMinMS) * time.Millisecond }

// ConfirmMax returns the configured upper bound for link confirmation.
func (t Timing) ConfirmMax() time.Duration { return time.Duration(t.ConfirmMaxMS) * time.Millisecond }

// Countdown returns the configured linking countdown.
func (t Timing) Countdown() time.Duration { return time.Duration(t.CountdownMS) * time.Millisecond }

// DeliveryDelay returns the configured simulated delivery delay.
func (t Timing) DeliveryDelay() time.Duration {
	return time.Duration(t.DeliveryDelayMS) * time.Millisecond
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
