// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !windows

package main

import (
	"context"
	"time"

	"github.com/nishisan-dev/n-tlog/internal/timespec"
	"github.com/nishisan-dev/n-tlog/internal/transport"
)

// playbackPacer replays packets at speed times the rate they were
// originally recorded, sleeping between packets rather than delaying
// writes the way transport.RateLimitWriter delays bytes.
type playbackPacer struct {
	speed      float64
	recStart   timespec.Timespec
	replayFrom time.Time
}

func newPlaybackPacer(speed float64) *playbackPacer {
	return &playbackPacer{speed: speed}
}

func (p *playbackPacer) start(ts timespec.Timespec) {
	p.recStart = ts
	p.replayFrom = time.Now()
}

// waitUntil sleeps until the wall-clock moment ts should play at,
// scaled by speed, or returns transport.ErrInterrupted if ctx is
// cancelled first.
func (p *playbackPacer) waitUntil(ctx context.Context, ts timespec.Timespec) error {
	elapsed := timespec.Sub(ts, p.recStart)
	elapsedSec := float64(elapsed.Sec) + float64(elapsed.Nsec)/1e9
	if elapsedSec < 0 {
		return nil
	}
	target := p.replayFrom.Add(time.Duration(elapsedSec / p.speed * float64(time.Second)))

	d := time.Until(target)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return transport.ErrInterrupted
	}
}
