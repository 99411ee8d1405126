// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pkt

import (
	"testing"

	"github.com/nishisan-dev/n-tlog/internal/timespec"
)

func TestVoidPacket(t *testing.T) {
	p := NewVoid(timespec.Zero)
	if !p.IsVoid() {
		t.Fatalf("expected void packet")
	}
	if !p.IsValid() {
		t.Fatalf("void packet should be valid")
	}
}

func TestIOPositionAdvance(t *testing.T) {
	p := NewIO(timespec.Zero, true, []byte("hello"))
	pos := NewPos(p)
	if pos.AtEnd(p) {
		t.Fatalf("fresh position should not be at end")
	}
	pos = pos.Advance(p, 3)
	if pos.Offset() != 3 {
		t.Fatalf("expected offset 3, got %d", pos.Offset())
	}
	if string(pos.Remaining(p)) != "lo" {
		t.Fatalf("expected remaining 'lo', got %q", pos.Remaining(p))
	}
	pos = pos.Advance(p, 2)
	if !pos.AtEnd(p) {
		t.Fatalf("expected position at end")
	}
}

func TestWindowPositionEmission(t *testing.T) {
	p := NewWindow(timespec.Zero, 80, 24)
	pos := NewPos(p)
	if pos.AtEnd(p) {
		t.Fatalf("fresh window position should not be at end")
	}
	pos = pos.Advance(p, 0)
	if !pos.AtEnd(p) {
		t.Fatalf("expected window position at end after advance")
	}
}
