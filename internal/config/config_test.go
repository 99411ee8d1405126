// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadRecConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
recorder:
  host: web-01
  user: alice
  term: xterm-256color
output:
  dir: /var/lib/ntlog/recordings
`)
	cfg, err := LoadRecConfig(path)
	if err != nil {
		t.Fatalf("LoadRecConfig: %v", err)
	}
	if cfg.Output.Transport != "file" {
		t.Errorf("expected default transport 'file', got %q", cfg.Output.Transport)
	}
	if cfg.Output.FileName != "{rec}.jsonl" {
		t.Errorf("expected default file_name '{rec}.jsonl', got %q", cfg.Output.FileName)
	}
	if cfg.Output.Codec != "none" {
		t.Errorf("expected default codec 'none', got %q", cfg.Output.Codec)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.RateLimit.Enabled {
		t.Errorf("expected rate_limit disabled by default")
	}
}

func TestLoadRecConfigMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
recorder:
  user: alice
  term: xterm
output:
  dir: /tmp
`)
	if _, err := LoadRecConfig(path); err == nil {
		t.Fatalf("expected an error for missing recorder.host")
	}
}

func TestLoadRecConfigRateLimitDefaults(t *testing.T) {
	path := writeConfig(t, `
recorder:
  host: web-01
  user: alice
  term: xterm
output:
  dir: /tmp
rate_limit:
  enabled: true
`)
	cfg, err := LoadRecConfig(path)
	if err != nil {
		t.Fatalf("LoadRecConfig: %v", err)
	}
	if cfg.RateLimit.RateRaw != 64*1024 {
		t.Errorf("expected default rate 64KB, got %d", cfg.RateLimit.RateRaw)
	}
	if cfg.RateLimit.BurstRaw != 16*1024 {
		t.Errorf("expected default burst 16KB, got %d", cfg.RateLimit.BurstRaw)
	}
	if cfg.RateLimit.Policy != "delay" {
		t.Errorf("expected default policy 'delay', got %q", cfg.RateLimit.Policy)
	}
}

func TestLoadRecConfigRejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, `
recorder:
  host: web-01
  user: alice
  term: xterm
output:
  dir: /tmp
rate_limit:
  enabled: true
  policy: throttle
`)
	if _, err := LoadRecConfig(path); err == nil {
		t.Fatalf("expected an error for an invalid rate_limit.policy")
	}
}

func TestLoadRecConfigRetentionRequiresDir(t *testing.T) {
	path := writeConfig(t, `
recorder:
  host: web-01
  user: alice
  term: xterm
output:
  dir: /tmp
retention:
  enabled: true
`)
	if _, err := LoadRecConfig(path); err == nil {
		t.Fatalf("expected an error for retention.enabled without retention.dir")
	}
}

func TestLoadPlayConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /var/lib/ntlog/recordings/abc.jsonl
`)
	cfg, err := LoadPlayConfig(path)
	if err != nil {
		t.Fatalf("LoadPlayConfig: %v", err)
	}
	if cfg.Input.Transport != "fd" {
		t.Errorf("expected default transport 'fd', got %q", cfg.Input.Transport)
	}
	if cfg.Playback.Speed != 0 {
		t.Errorf("expected default speed 0, got %f", cfg.Playback.Speed)
	}
}

func TestLoadPlayConfigFilters(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /var/lib/ntlog/recordings/abc.jsonl
  filter_host: web-1
  filter_recording: abc123
  filter_user: alice
  filter_session: 4242
`)
	cfg, err := LoadPlayConfig(path)
	if err != nil {
		t.Fatalf("LoadPlayConfig: %v", err)
	}
	if cfg.Input.FilterHost != "web-1" {
		t.Errorf("expected filter_host 'web-1', got %q", cfg.Input.FilterHost)
	}
	if cfg.Input.FilterRecording != "abc123" {
		t.Errorf("expected filter_recording 'abc123', got %q", cfg.Input.FilterRecording)
	}
	if cfg.Input.FilterUser != "alice" {
		t.Errorf("expected filter_user 'alice', got %q", cfg.Input.FilterUser)
	}
	if cfg.Input.FilterSession != 4242 {
		t.Errorf("expected filter_session 4242, got %d", cfg.Input.FilterSession)
	}
}

func TestLoadPlayConfigElasticsearchRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
input:
  transport: elasticsearch
`)
	if _, err := LoadPlayConfig(path); err == nil {
		t.Fatalf("expected an error for elasticsearch transport without es_base_url")
	}
}

func TestLoadPlayConfigElasticsearchPageSizeDefault(t *testing.T) {
	path := writeConfig(t, `
input:
  transport: elasticsearch
  es_base_url: http://localhost:9200/ntlog
`)
	cfg, err := LoadPlayConfig(path)
	if err != nil {
		t.Fatalf("LoadPlayConfig: %v", err)
	}
	if cfg.Input.ESPageSize != 100 {
		t.Errorf("expected default es_page_size 100, got %d", cfg.Input.ESPageSize)
	}
}

func TestLoadPlayConfigRejectsNegativeSpeed(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /tmp/rec.jsonl
playback:
  speed: -1
`)
	if _, err := LoadPlayConfig(path); err == nil {
		t.Fatalf("expected an error for a negative playback.speed")
	}
}

func TestParseByteSizeSuffixes(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"512b": 512,
		"1kb":  1024,
		"4mb":  4 * 1024 * 1024,
		"2gb":  2 * 1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Fatalf("expected an error for an unparsable size string")
	}
}
