// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches every record to two
// handlers. NewRecordingLogger uses it to write simultaneously to the
// daemon's global handler and a recording's own dedicated log file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Each handler's own Enabled() is checked before dispatch, so a DEBUG
	// record isn't sent to a primary handler configured for INFO or above.
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure on the recording's own log file must not block the
	// global log stream.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewRecordingLogger builds a logger that writes to both the base (daemon-wide)
// logger and a file dedicated to one recording:
//
//	{recordingLogDir}/{daemonName}/{recID}.log
//
// It returns the enriched logger, an io.Closer for the recording's log file,
// and the file's path (recordingLogDir joined with the daemon and file
// name; relative if recordingLogDir is). The Closer must be closed (defer) when the
// recording ends.
//
// An empty recordingLogDir returns the base logger unmodified (no-op).
func NewRecordingLogger(baseLogger *slog.Logger, recordingLogDir, daemonName, recID string) (*slog.Logger, io.Closer, string, error) {
	if recordingLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(recordingLogDir, daemonName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating recording log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, recID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening recording log file %s: %w", logPath, err)
	}

	// The recording's own log always uses JSON at DEBUG for maximum capture.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveRecordingLog deletes the log file for a recording that finished
// cleanly. No-op if recordingLogDir is empty or the file doesn't exist.
func RemoveRecordingLog(recordingLogDir, daemonName, recID string) {
	if recordingLogDir == "" {
		return
	}
	logPath := filepath.Join(recordingLogDir, daemonName, recID+".log")
	os.Remove(logPath)
}
