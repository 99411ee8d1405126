// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlayConfig is the complete ntlog-play configuration.
type PlayConfig struct {
	Input    InputConfig    `yaml:"input"`
	Playback PlaybackConfig `yaml:"playback"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingInfo    `yaml:"logging"`
}

// InputConfig selects where the replayed recording is read from.
type InputConfig struct {
	Transport string `yaml:"transport"` // fd|file|journal|elasticsearch (default: fd)

	// Used when transport == "file" or "fd" with a path (as opposed to stdin).
	Path string `yaml:"path"`

	// Used when transport == "journal".
	JournalRecording string   `yaml:"journal_recording"`
	JournalMatches   []string `yaml:"journal_matches"` // "FIELD=value" pairs
	SinceUnixMicro   uint64   `yaml:"since_unix_micro"`
	UntilUnixMicro   uint64   `yaml:"until_unix_micro"`
	HasUntil         bool     `yaml:"-"`

	// Used when transport == "elasticsearch".
	ESBaseURL  string `yaml:"es_base_url"`
	ESQuery    string `yaml:"es_query"`
	ESPageSize int    `yaml:"es_page_size"` // default: 100

	// Message-level filters, applied the way message.Source applies
	// them: empty/zero means unfiltered for that field.
	FilterHost      string `yaml:"filter_host"`
	FilterRecording string `yaml:"filter_recording"`
	FilterUser      string `yaml:"filter_user"`
	FilterSession   uint32 `yaml:"filter_session"`

	// Strict continuity checking: reject id gaps instead of tolerating
	// them.
	StrictContinuity bool `yaml:"strict_continuity"`

	// Terminal type the recording must match; empty disables the check.
	ExpectTerm string `yaml:"expect_term"`
}

// PlaybackConfig controls how replayed packets are paced to the consumer.
type PlaybackConfig struct {
	Speed     float64         `yaml:"speed"` // 0 = as fast as possible, 1 = real time, >1 = faster
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LoadPlayConfig reads and validates ntlog-play's YAML configuration.
func LoadPlayConfig(path string) (*PlayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading player config: %w", err)
	}

	var cfg PlayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing player config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating player config: %w", err)
	}

	return &cfg, nil
}

func (c *PlayConfig) validate() error {
	c.Input.Transport = strings.ToLower(strings.TrimSpace(c.Input.Transport))
	if c.Input.Transport == "" {
		c.Input.Transport = "fd"
	}
	switch c.Input.Transport {
	case "fd", "file", "journal", "elasticsearch":
	default:
		return fmt.Errorf("input.transport must be fd, file, journal or elasticsearch, got %q", c.Input.Transport)
	}

	if c.Input.Transport == "elasticsearch" {
		if c.Input.ESBaseURL == "" {
			return fmt.Errorf("input.es_base_url is required when input.transport is elasticsearch")
		}
		if c.Input.ESPageSize <= 0 {
			c.Input.ESPageSize = 100
		}
	}

	if c.Input.UntilUnixMicro > 0 {
		c.Input.HasUntil = true
	}

	if c.Playback.Speed < 0 {
		return fmt.Errorf("playback.speed must be >= 0, got %f", c.Playback.Speed)
	}

	if err := c.Playback.RateLimit.validate(); err != nil {
		return err
	}
	c.Metrics.setDefaults()
	c.Logging.setDefaults()

	return nil
}
