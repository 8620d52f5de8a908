// Package config loads the scanner configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical defaults file, relative to the
// repository root.
const DefaultConfigPath = "config/scanner.defaults.json"

// ScannerConfig is the root of the configuration file. Every field is
// optional; the Get* accessors supply defaults for omitted ones.
type ScannerConfig struct {
	// Worker loop
	SignalPeriod   *string `json:"signal_period,omitempty"` // duration string like "1s"
	CommandTimeout *string `json:"command_timeout,omitempty"` // bounds each QENG command
	ATTimeout      *string `json:"at_timeout,omitempty"`      // bounds short AT queries
	MaxNeighbors   *int    `json:"max_neighbors,omitempty"`   // 0 keeps all

	// Publisher
	ScanInterval         *string `json:"scan_interval,omitempty"` // "0s" disables periodic scans
	ScanTimeout          *string `json:"scan_timeout,omitempty"`
	SignalRecordInterval *string `json:"signal_record_interval,omitempty"`
	SignalMaxAge         *string `json:"signal_max_age,omitempty"`
	HistoryRetention     *string `json:"history_retention,omitempty"` // "0s" keeps everything

	// Serial port
	BaudRate *int `json:"baud_rate,omitempty"`
}

const maxFileSize = 1 * 1024 * 1024

// LoadScannerConfig reads and validates the JSON file at path.
func LoadScannerConfig(path string) (*ScannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ScannerConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field that is set.
func (c *ScannerConfig) Validate() error {
	positive := []struct {
		name string
		v    *string
	}{
		{"signal_period", c.SignalPeriod},
		{"command_timeout", c.CommandTimeout},
		{"at_timeout", c.ATTimeout},
	}
	for _, f := range positive {
		d, err := parseOptional(f.name, f.v)
		if err != nil {
			return err
		}
		if f.v != nil && *f.v != "" && d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, *f.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *string
	}{
		{"scan_interval", c.ScanInterval},
		{"scan_timeout", c.ScanTimeout},
		{"signal_record_interval", c.SignalRecordInterval},
		{"signal_max_age", c.SignalMaxAge},
		{"history_retention", c.HistoryRetention},
	}
	for _, f := range nonNegative {
		d, err := parseOptional(f.name, f.v)
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, *f.v)
		}
	}

	if c.MaxNeighbors != nil && *c.MaxNeighbors < 0 {
		return fmt.Errorf("max_neighbors must be non-negative, got %d", *c.MaxNeighbors)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	return nil
}

func parseOptional(name string, v *string) (time.Duration, error) {
	if v == nil || *v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	return d, nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func (c *ScannerConfig) GetSignalPeriod() time.Duration {
	return durationOr(c.SignalPeriod, time.Second)
}

func (c *ScannerConfig) GetCommandTimeout() time.Duration {
	return durationOr(c.CommandTimeout, 10*time.Second)
}

func (c *ScannerConfig) GetATTimeout() time.Duration {
	return durationOr(c.ATTimeout, 2*time.Second)
}

func (c *ScannerConfig) GetMaxNeighbors() int {
	if c.MaxNeighbors == nil {
		return 0
	}
	return *c.MaxNeighbors
}

// GetScanInterval returns how often the publisher scans; 0 disables it.
func (c *ScannerConfig) GetScanInterval() time.Duration {
	return durationOr(c.ScanInterval, 5*time.Minute)
}

func (c *ScannerConfig) GetScanTimeout() time.Duration {
	return durationOr(c.ScanTimeout, 30*time.Second)
}

// GetSignalRecordInterval returns how often the publisher stores the
// signal; 0 disables it.
func (c *ScannerConfig) GetSignalRecordInterval() time.Duration {
	return durationOr(c.SignalRecordInterval, time.Minute)
}

func (c *ScannerConfig) GetSignalMaxAge() time.Duration {
	return durationOr(c.SignalMaxAge, 10*time.Second)
}

// GetHistoryRetention returns how long stored history is kept; 0 keeps
// everything.
func (c *ScannerConfig) GetHistoryRetention() time.Duration {
	return durationOr(c.HistoryRetention, 30*24*time.Hour)
}

func (c *ScannerConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}
