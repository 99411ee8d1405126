// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package trx

import "testing"

// counter is a minimal Participant wrapping an int, for exercising the
// Frame machinery in isolation from chunk/stream.
type counter struct {
	value int
	slots Slots[int]
}

func (c *counter) Act(level int, action Action) {
	switch action {
	case Backup:
		c.slots.Backup(level, c.value)
	case Restore:
		c.value = c.slots.Restore(level)
	case Discard:
		c.slots.Discard(level)
	}
}

func TestCommitKeepsChanges(t *testing.T) {
	c := &counter{}
	f := NewFrame(c)
	f.Begin()
	c.value = 42
	f.Commit()
	if c.value != 42 {
		t.Fatalf("expected 42 after commit, got %d", c.value)
	}
}

func TestAbortRollsBack(t *testing.T) {
	c := &counter{value: 1}
	f := NewFrame(c)
	f.Begin()
	c.value = 99
	f.Abort()
	if c.value != 1 {
		t.Fatalf("expected rollback to 1, got %d", c.value)
	}
}

func TestNestedBeginOnlyBacksUpOnce(t *testing.T) {
	c := &counter{value: 5}
	f := NewFrame(c)
	f.Begin()
	c.value = 6
	f.Begin() // nested, same level: no new backup
	c.value = 7
	f.Commit() // pops nested depth, no discard yet
	if c.value != 7 {
		t.Fatalf("expected 7 mid-nesting, got %d", c.value)
	}
	f.Commit() // outer commit, discards level-0 snapshot
	if c.value != 7 {
		t.Fatalf("expected 7 after outer commit, got %d", c.value)
	}
}

func TestNestedFrameIndependentLevel(t *testing.T) {
	c := &counter{value: 1}
	outer := NewFrame(c)
	outer.Begin()
	c.value = 2

	inner := outer.Nested()
	inner.Begin()
	c.value = 3
	inner.Abort()
	if c.value != 2 {
		t.Fatalf("expected inner abort to restore to 2, got %d", c.value)
	}

	outer.Commit()
	if c.value != 2 {
		t.Fatalf("expected 2 after outer commit, got %d", c.value)
	}
}

func TestRunHelper(t *testing.T) {
	c := &counter{value: 1}
	f := NewFrame(c)
	ok := f.Run(func() bool {
		c.value = 10
		return true
	})
	if !ok || c.value != 10 {
		t.Fatalf("expected committed run, got ok=%v value=%d", ok, c.value)
	}
	ok = f.Run(func() bool {
		c.value = 999
		return false
	})
	if ok || c.value != 10 {
		t.Fatalf("expected aborted run to roll back, got ok=%v value=%d", ok, c.value)
	}
}
