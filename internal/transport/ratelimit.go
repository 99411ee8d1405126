// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transport

import (
	"context"
	"time"

	"github.com/nishisan-dev/n-tlog/internal/message"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
)

// Policy selects what RateLimitWriter does when a write would exceed
// the bucket's limit.
type Policy int

const (
	// PolicyDelay sleeps until enough tokens drain, then writes.
	PolicyDelay Policy = iota
	// PolicyDrop silently discards the write and reports success.
	PolicyDrop
)

// clock abstracts time.Now so tests can drive the bucket without
// sleeping; Sleep is its own abstraction for the same reason.
type clock interface {
	now() timespec.Timespec
	sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) now() timespec.Timespec { return timespec.FromTime(time.Now()) }

func (realClock) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ErrInterrupted
	}
}

// RateLimitWriter decorates a message.Writer with a token-bucket rate
// limit. The bucket, rate and limit are float64 byte counts; only the
// clock readings (lastSync and the time elapsed since it) are timespec
// values.
type RateLimitWriter struct {
	w      message.Writer
	ctx    context.Context
	clk    clock
	policy Policy

	rate  float64 // bytes per second
	limit float64 // rate + burst

	bucket    float64
	lastSync  timespec.Timespec
	hasSynced bool
}

// NewRateLimitWriter decorates w, capping throughput to ratePerSec
// bytes/second with burstBytes of slack, per policy.
func NewRateLimitWriter(ctx context.Context, w message.Writer, ratePerSec float64, burstBytes float64, policy Policy) *RateLimitWriter {
	return &RateLimitWriter{
		w:      w,
		ctx:    ctx,
		clk:    realClock{},
		policy: policy,
		rate:   ratePerSec,
		limit:  ratePerSec + burstBytes,
	}
}

// Write applies the drain/pour/write-or-delay-or-drop algorithm before
// delegating to the wrapped writer.
func (rw *RateLimitWriter) Write(id uint64, line []byte) error {
	now := rw.clk.now()
	if !rw.hasSynced {
		rw.lastSync = now
		rw.hasSynced = true
	}

	elapsed := timespec.Sub(now, rw.lastSync)
	elapsedSec := float64(elapsed.Sec) + float64(elapsed.Nsec)/1e9
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	rw.bucket -= elapsedSec * rw.rate
	if rw.bucket < 0 {
		rw.bucket = 0
	}
	rw.lastSync = now

	candidate := rw.bucket + float64(len(line))
	if candidate <= rw.limit {
		rw.bucket = candidate
		return rw.w.Write(id, line)
	}

	if rw.policy == PolicyDrop {
		return nil
	}

	over := candidate - rw.limit
	var waitSec float64
	if rw.rate > 0 {
		waitSec = over / rw.rate
	}
	if err := rw.clk.sleep(rw.ctx, time.Duration(waitSec*float64(time.Second))); err != nil {
		return err
	}
	if err := rw.w.Write(id, line); err != nil {
		return err
	}
	rw.bucket = rw.limit
	rw.lastSync = rw.clk.now()
	return nil
}
