// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RecConfig is the complete ntlog-rec configuration.
type RecConfig struct {
	Recorder  RecorderInfo    `yaml:"recorder"`
	Output    OutputConfig    `yaml:"output"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retention RetentionConfig `yaml:"retention"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingInfo     `yaml:"logging"`
}

// RecorderInfo identifies the recording: the fields written verbatim into
// every message's host/user/term/rec/session envelope.
type RecorderInfo struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Term string `yaml:"term"`

	// Session is the audit session id stamped into every message's
	// "session" field. 0 means ntlog-rec derives one from the process's
	// own audit session at startup (see cmd/ntlog-rec).
	Session uint32 `yaml:"session"`

	// Rec is the recording identifier. Empty means ntlog-rec mints one
	// with uuid.NewString() at startup.
	Rec string `yaml:"rec"`
}

// OutputConfig selects where the recorded JSON lines land.
type OutputConfig struct {
	Transport string `yaml:"transport"` // fd|file|syslog|journal (default: file)

	// Used when transport == "file".
	Dir          string `yaml:"dir"`
	FileName     string `yaml:"file_name"` // default: "{rec}.jsonl"
	Codec        string `yaml:"codec"`     // none|gzip|zstd (default: none)
	MinFreeSpace string `yaml:"min_free_space"`
	MinFreeBytes int64  `yaml:"-"`

	// Used when transport == "syslog".
	SyslogNetwork  string `yaml:"syslog_network"` // empty dials the local syslog daemon
	SyslogAddr     string `yaml:"syslog_addr"`
	SyslogPriority int    `yaml:"syslog_priority"` // default: LOG_INFO (6)
	SyslogTag      string `yaml:"syslog_tag"`

	// Used when transport == "journal".
	JournalPriority int `yaml:"journal_priority"` // default: 6 (LOG_INFO)
}

// LoadRecConfig reads and validates ntlog-rec's YAML configuration.
func LoadRecConfig(path string) (*RecConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recorder config: %w", err)
	}

	var cfg RecConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing recorder config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating recorder config: %w", err)
	}

	return &cfg, nil
}

func (c *RecConfig) validate() error {
	if c.Recorder.Host == "" {
		return fmt.Errorf("recorder.host is required")
	}
	if c.Recorder.User == "" {
		return fmt.Errorf("recorder.user is required")
	}
	if c.Recorder.Term == "" {
		return fmt.Errorf("recorder.term is required")
	}

	c.Output.Transport = strings.ToLower(strings.TrimSpace(c.Output.Transport))
	if c.Output.Transport == "" {
		c.Output.Transport = "file"
	}
	switch c.Output.Transport {
	case "fd", "file", "syslog", "journal":
	default:
		return fmt.Errorf("output.transport must be fd, file, syslog or journal, got %q", c.Output.Transport)
	}

	if c.Output.Transport == "file" {
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir is required when output.transport is file")
		}
		if c.Output.FileName == "" {
			c.Output.FileName = "{rec}.jsonl"
		}
		c.Output.Codec = strings.ToLower(strings.TrimSpace(c.Output.Codec))
		if c.Output.Codec == "" {
			c.Output.Codec = "none"
		}
		if c.Output.Codec != "none" && c.Output.Codec != "gzip" && c.Output.Codec != "zstd" {
			return fmt.Errorf("output.codec must be none, gzip or zstd, got %q", c.Output.Codec)
		}
		if c.Output.MinFreeSpace != "" {
			parsed, err := ParseByteSize(c.Output.MinFreeSpace)
			if err != nil {
				return fmt.Errorf("output.min_free_space: %w", err)
			}
			c.Output.MinFreeBytes = parsed
		}
	}

	if c.Output.Transport == "syslog" && c.Output.SyslogPriority == 0 {
		c.Output.SyslogPriority = 6 // LOG_INFO
	}
	if c.Output.Transport == "journal" && c.Output.JournalPriority == 0 {
		c.Output.JournalPriority = 6
	}

	if err := c.RateLimit.validate(); err != nil {
		return err
	}
	if err := c.Retention.validate(); err != nil {
		return err
	}
	c.Metrics.setDefaults()
	c.Logging.setDefaults()

	return nil
}

// RetentionMaxAge parses RetentionConfig.MaxAge, already validated non-empty
// when Retention.Enabled.
func (c *RecConfig) RetentionMaxAge() (time.Duration, error) {
	return time.ParseDuration(c.Retention.MaxAge)
}
