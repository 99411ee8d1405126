// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRecordingLoggerDisabled(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil))

	logger, closer, path, err := NewRecordingLogger(base, "", "ntlog-rec", "rec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger != base {
		t.Error("expected base logger when recordingLogDir is empty")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestNewRecordingLoggerCreatesFileAndLogs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewRecordingLogger(base, dir, "ntlog-rec", "rec-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	daemonDir := filepath.Join(dir, "ntlog-rec")
	if _, err := os.Stat(daemonDir); os.IsNotExist(err) {
		t.Fatalf("daemon dir not created: %s", daemonDir)
	}

	expectedPath := filepath.Join(daemonDir, "rec-abc.log")
	if logPath != expectedPath {
		t.Errorf("expected path %q, got %q", expectedPath, logPath)
	}

	logger.Info("test message", "key", "value")
	closer.Close()

	if !strings.Contains(baseBuf.String(), "test message") {
		t.Errorf("log message not found in base handler output: %s", baseBuf.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading recording log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "test message") {
		t.Errorf("log message not found in recording file: %s", content)
	}
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("structured key not found in recording file: %s", content)
	}
}

func TestNewRecordingLoggerDebugInFileInfoInBase(t *testing.T) {
	dir := t.TempDir()

	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, logPath, err := NewRecordingLogger(base, dir, "ntlog-rec", "rec-debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("debug only message")
	logger.Info("info for both")

	closer.Close()

	if strings.Contains(baseBuf.String(), "debug only message") {
		t.Error("DEBUG message should not appear in base handler with INFO level")
	}
	if !strings.Contains(baseBuf.String(), "info for both") {
		t.Error("INFO message missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "debug only message") {
		t.Errorf("DEBUG message missing from recording file: %s", content)
	}
	if !strings.Contains(content, "info for both") {
		t.Errorf("INFO message missing from recording file: %s", content)
	}
}

func TestRemoveRecordingLog(t *testing.T) {
	dir := t.TempDir()
	daemonDir := filepath.Join(dir, "ntlog-rec")
	os.MkdirAll(daemonDir, 0755)

	logPath := filepath.Join(daemonDir, "rec-to-remove.log")
	os.WriteFile(logPath, []byte("test"), 0644)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Fatal("setup failed: log file not created")
	}

	RemoveRecordingLog(dir, "ntlog-rec", "rec-to-remove")

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("recording log file should have been removed")
	}
}

func TestRemoveRecordingLogNoOpWhenEmpty(t *testing.T) {
	RemoveRecordingLog("", "ntlog-rec", "rec")
}

func TestRemoveRecordingLogNoOpWhenFileMissing(t *testing.T) {
	RemoveRecordingLog(t.TempDir(), "ntlog-rec", "nonexistent-rec")
}

func TestNewRecordingLoggerWithAttrs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewRecordingLogger(base, dir, "ntlog-rec", "rec-attrs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enriched := logger.With("rec", "rec-attrs", "codec", "zstd")
	enriched.Info("enriched message")

	closer.Close()

	if !strings.Contains(baseBuf.String(), "rec-attrs") {
		t.Error("rec attr missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "rec-attrs") {
		t.Errorf("rec attr missing from recording file: %s", content)
	}
	if !strings.Contains(content, "zstd") {
		t.Errorf("codec attr missing from recording file: %s", content)
	}
}
