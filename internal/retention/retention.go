// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package retention prunes aged recording files on a cron schedule,
// driving one guarded cron job the same way a backup scheduler drives
// independent per-entry jobs.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Result records the outcome of one pruning pass.
type Result struct {
	Status    string    `json:"status"` // "completed", "failed", "skipped"
	Removed   int       `json:"removed"`
	Bytes     int64     `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// Pruner owns the guard flag and last-result bookkeeping for one
// recurring pruning job.
type Pruner struct {
	Dir    string
	MaxAge time.Duration

	mu         sync.Mutex
	running    bool
	LastResult *Result
}

// Scheduler drives a single cron job that prunes recordings older than
// MaxAge from Dir.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	pruner *Pruner
}

// NewScheduler creates a Scheduler with one cron job wired to schedule.
func NewScheduler(dir string, maxAge time.Duration, schedule string, logger *slog.Logger) (*Scheduler, error) {
	pruner := &Pruner{Dir: dir, MaxAge: maxAge}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	s := &Scheduler{logger: logger, pruner: pruner}
	if _, err := c.AddFunc(schedule, s.executePrune); err != nil {
		return nil, fmt.Errorf("adding retention cron job: %w", err)
	}

	logger.Info("registered retention job", "dir", dir, "max_age", maxAge, "schedule", schedule)

	s.cron = c
	return s, nil
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("retention scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for an in-flight pruning pass.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("retention scheduler stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		s.logger.Info("retention scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("retention scheduler stop timed out")
	}
}

// LastResult returns the outcome of the most recent pruning pass, or nil
// if none has run yet.
func (s *Scheduler) LastResult() *Result {
	s.pruner.mu.Lock()
	defer s.pruner.mu.Unlock()
	return s.pruner.LastResult
}

func (s *Scheduler) executePrune() {
	p := s.pruner
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		s.logger.Warn("retention pass already running, skipping scheduled execution")
		p.LastResult = &Result{Status: "skipped", Timestamp: time.Now()}
		return
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	s.logger.Info("scheduled retention pass triggered")
	removed, bytes, err := Prune(p.Dir, p.MaxAge, time.Now())
	if err != nil {
		s.logger.Error("retention pass failed", "error", err)
		p.LastResult = &Result{Status: "failed", Timestamp: time.Now()}
		return
	}

	s.logger.Info("retention pass completed", "removed", removed, "bytes", bytes)
	p.LastResult = &Result{
		Status:    "completed",
		Removed:   removed,
		Bytes:     bytes,
		Timestamp: time.Now(),
	}
}

// Prune removes every regular file directly under dir whose modification
// time is older than now.Add(-maxAge). It returns the count and total
// byte size of removed files. A single file's removal error does not
// abort the pass; it is skipped and pruning continues.
func Prune(dir string, maxAge time.Duration, now time.Time) (removed int, freedBytes int64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("reading retention directory %s: %w", dir, err)
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			continue
		}
		removed++
		freedBytes += info.Size()
	}

	return removed, freedBytes, nil
}
