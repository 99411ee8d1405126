// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package chunk packages one input stream and one output stream
// sharing a single timing buffer and remaining-space budget into the
// fixed-size unit that becomes one emitted JSON message.
package chunk

import (
	"fmt"
	"strconv"

	"github.com/nishisan-dev/n-tlog/internal/stream"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
	"github.com/nishisan-dev/n-tlog/internal/trx"
)

type chunkSnapshot struct {
	rem       int
	timingLen int
	first     timespec.Timespec
	last      timespec.Timespec
	fresh     bool
}

// Chunk is the bounded packing unit: one input Stream, one output
// Stream, a shared timing buffer, and the rem budget all three draw
// from. Chunk itself is the Dispatcher both streams use.
type Chunk struct {
	size int
	rem  int

	timing []byte

	input  *stream.Stream
	output *stream.Stream

	first timespec.Timespec
	last  timespec.Timespec
	fresh bool // true until the first packet is ever written

	topFrame *trx.Frame
	slots    trx.Slots[chunkSnapshot]
}

// New returns an empty chunk bounded to size bytes.
func New(size int) *Chunk {
	c := &Chunk{size: size, rem: size, fresh: true}
	c.input = stream.New(size, '<', '[', c)
	c.output = stream.New(size, '>', ']', c)
	c.topFrame = trx.NewFrame(c, c.input, c.output)
	return c
}

// Reserve and WriteTiming implement stream.Dispatcher: both streams
// share this chunk as their dispatcher, so they draw from one budget
// and append to one timing buffer.
func (c *Chunk) Reserve(n int) bool {
	if n > c.rem {
		return false
	}
	c.rem -= n
	return true
}

func (c *Chunk) WriteTiming(p []byte) { c.timing = append(c.timing, p...) }

// Act implements trx.Participant.
func (c *Chunk) Act(level int, action trx.Action) {
	switch action {
	case trx.Backup:
		c.slots.Backup(level, chunkSnapshot{
			rem: c.rem, timingLen: len(c.timing),
			first: c.first, last: c.last, fresh: c.fresh,
		})
	case trx.Restore:
		snap := c.slots.Restore(level)
		c.rem = snap.rem
		c.timing = c.timing[:snap.timingLen]
		c.first = snap.first
		c.last = snap.last
		c.fresh = snap.fresh
	case trx.Discard:
		c.slots.Discard(level)
	}
}

// advance implements chunk.Write's step 1: record the chunk's first
// timestamp on the very first write, otherwise flush open runs and
// emit a "+N" delay token when the gap since the last write is at
// least a millisecond. On success last is set to ts itself, so the
// sub-millisecond part of each gap that the "+N" token truncates (or a
// whole gap under a millisecond) is not carried into later delays (see
// DESIGN.md).
func (c *Chunk) advance(ts timespec.Timespec) bool {
	if c.fresh {
		c.first = ts
		c.last = ts
		c.fresh = false
		return true
	}

	ms := timespec.Sub(ts, c.last).Milliseconds()
	ok := true
	if ms >= 1 {
		ok = c.topFrame.Run(func() bool {
			c.input.Flush()
			c.output.Flush()
			tok := []byte("+" + strconv.FormatInt(ms, 10))
			if !c.Reserve(len(tok)) {
				return false
			}
			c.WriteTiming(tok)
			return true
		})
	}
	if ok {
		c.last = ts
	}
	return ok
}

// Write is the chunk's public entry for an I/O packet slice. It
// advances time, then asks the direction's stream to accept as many
// bytes as fit, returning the count accepted (which may be zero). The
// whole call - the advance's "+N" delay token included - is one
// transaction: if advancing time fails to reserve its token, or the
// stream accepts nothing, everything rolls back and zero is returned,
// so a dangling "+N" is never left behind for a write the caller must
// treat as not having happened.
func (c *Chunk) Write(ts timespec.Timespec, output bool, buf []byte) int {
	var n int
	c.topFrame.Run(func() bool {
		if !c.advance(ts) {
			return false
		}
		if output {
			n = c.output.Write(buf)
		} else {
			n = c.input.Write(buf)
		}
		return n > 0
	})
	return n
}

// WriteWindow is the chunk's public entry for a window-resize packet:
// a single "=WxH" timing token, reserved and written atomically.
func (c *Chunk) WriteWindow(ts timespec.Timespec, width, height uint16) bool {
	if !c.advance(ts) {
		return false
	}
	tok := []byte(fmt.Sprintf("=%dx%d", width, height))
	return c.topFrame.Run(func() bool {
		if !c.Reserve(len(tok)) {
			return false
		}
		c.WriteTiming(tok)
		return true
	})
}

// Flush closes both streams' open runs, emitting their terminal timing
// tokens from already-reserved space, without resetting content.
func (c *Chunk) Flush() {
	c.input.Flush()
	c.output.Flush()
}

// Cut atomically forces any pending incomplete UTF-8 in both streams
// into their binary sub-buffers. If either stream fails to fit its
// dump, the whole operation (including any effect on the other
// stream) is rolled back and Cut returns false.
func (c *Chunk) Cut() bool {
	c.topFrame.Begin()
	okIn := c.input.Cut()
	okOut := false
	if okIn {
		okOut = c.output.Cut()
	}
	if okIn && okOut {
		c.topFrame.Commit()
		return true
	}
	c.topFrame.Abort()
	return false
}

// Empty resets the chunk to fresh (rem = size, first/last zeroed, both
// streams emptied, timing buffer cleared) while preserving each
// stream's pending UTF-8 state.
func (c *Chunk) Empty() {
	c.rem = c.size
	c.timing = c.timing[:0]
	c.first = timespec.Zero
	c.last = timespec.Zero
	c.fresh = true
	c.input.Empty()
	c.output.Empty()
}

// IsEmpty reports whether the chunk holds no committed content at all.
func (c *Chunk) IsEmpty() bool {
	return len(c.timing) == 0 && c.input.IsEmpty() && c.output.IsEmpty()
}

// IsPending reports whether anything has been written since the last
// Empty. It stays true after a Flush has closed the open runs.
func (c *Chunk) IsPending() bool { return !c.fresh }

// IsValid checks the chunk accounting invariant: rem plus every
// sub-buffer's length must equal size exactly.
func (c *Chunk) IsValid() bool {
	used := len(c.timing) + len(c.input.Text()) + len(c.input.Binary()) +
		len(c.output.Text()) + len(c.output.Binary())
	return c.rem+used == c.size
}

func (c *Chunk) First() timespec.Timespec { return c.first }
func (c *Chunk) Last() timespec.Timespec  { return c.last }
func (c *Chunk) Rem() int                 { return c.rem }
func (c *Chunk) Size() int                { return c.size }

func (c *Chunk) Timing() string       { return string(c.timing) }
func (c *Chunk) InputText() string    { return c.input.Text() }
func (c *Chunk) InputBinary() string  { return c.input.Binary() }
func (c *Chunk) OutputText() string   { return c.output.Text() }
func (c *Chunk) OutputBinary() string { return c.output.Binary() }
