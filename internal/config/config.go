// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the YAML configuration files for
// ntlog-rec and ntlog-play.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LoggingInfo configures the slog setup shared by both daemons.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // optional, tee to this path in addition to stdout
}

func (l *LoggingInfo) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // default: "127.0.0.1:9849"
}

func (m *MetricsConfig) setDefaults() {
	if m.Enabled && m.Listen == "" {
		m.Listen = "127.0.0.1:9849"
	}
}

// RateLimitConfig configures the rate-limiting writer decorator.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Rate    string `yaml:"rate"`   // bytes/sec, e.g. "64kb" (default: "64kb")
	Burst   string `yaml:"burst"`  // bytes, e.g. "16kb" (default: "16kb")
	Policy  string `yaml:"policy"` // "delay" (default) or "drop"

	RateRaw  int64 `yaml:"-"`
	BurstRaw int64 `yaml:"-"`
}

func (r *RateLimitConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Rate == "" {
		r.Rate = "64kb"
	}
	parsed, err := ParseByteSize(r.Rate)
	if err != nil {
		return fmt.Errorf("rate_limit.rate: %w", err)
	}
	if parsed <= 0 {
		return fmt.Errorf("rate_limit.rate must be > 0, got %s", r.Rate)
	}
	r.RateRaw = parsed

	if r.Burst == "" {
		r.Burst = "16kb"
	}
	burst, err := ParseByteSize(r.Burst)
	if err != nil {
		return fmt.Errorf("rate_limit.burst: %w", err)
	}
	if burst < 0 {
		return fmt.Errorf("rate_limit.burst must be >= 0, got %s", r.Burst)
	}
	r.BurstRaw = burst

	r.Policy = strings.ToLower(strings.TrimSpace(r.Policy))
	if r.Policy == "" {
		r.Policy = "delay"
	}
	if r.Policy != "delay" && r.Policy != "drop" {
		return fmt.Errorf("rate_limit.policy must be delay or drop, got %q", r.Policy)
	}
	return nil
}

// RetentionConfig configures internal/retention's cron-scheduled pruning
// of aged recording files.
type RetentionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`      // directory scanned for recordings to prune
	MaxAge   string `yaml:"max_age"`  // e.g. "720h" (30 days); parsed via time.ParseDuration
	Schedule string `yaml:"schedule"` // cron expression, default: "@hourly"
}

func (r *RetentionConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Dir == "" {
		return fmt.Errorf("retention.dir is required when retention is enabled")
	}
	if r.MaxAge == "" {
		r.MaxAge = "720h"
	}
	if r.Schedule == "" {
		r.Schedule = "@hourly"
	}
	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longest suffix first so "mb" doesn't match as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
