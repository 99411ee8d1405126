// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package stream converts one direction's (input or output) byte run
// into two parallel encoded sub-buffers - JSON-escaped valid UTF-8 text
// and decimal-comma-encoded invalid bytes - plus run-length timing
// markers, all drawn from a single remaining-space budget owned by the
// enclosing chunk.
package stream

import (
	"fmt"
	"strconv"

	"github.com/nishisan-dev/n-tlog/internal/trx"
	"github.com/nishisan-dev/n-tlog/internal/utf8"
)

// Dispatcher is the narrow capability a Stream uses to talk to its
// enclosing chunk: reserve space from the shared budget, and append
// bytes to the shared timing buffer. It also forwards the stream's
// transactions to the chunk, so a stream can enroll its chunk in its
// own atomic commits without knowing about chunks.
type Dispatcher interface {
	trx.Participant
	Reserve(n int) bool
	WriteTiming(p []byte)
}

type runKind int

const (
	runNone runKind = iota
	runText
	runBinary
)

// snapshot is one Stream's transactional state, captured per level.
type snapshot struct {
	txtLen, binLen               int
	openKind                     runKind
	runCount, cutChars, reserved int
	pending                      utf8.State
}

// Stream is one direction's encoded payload within a chunk.
type Stream struct {
	size                  int
	textMarker, binMarker byte

	txt []byte
	bin []byte

	openKind runKind
	runCount int // chars (text run) or bytes (binary run) committed so far
	cutChars int // M: incomplete sequences folded into the open binary run
	reserved int // timing bytes already reserved for the open run's token

	pending utf8.State

	disp  Dispatcher
	frame *trx.Frame
	slots trx.Slots[snapshot]
}

// New returns an empty stream bounded to size bytes per sub-buffer,
// using textMarker/binMarker for its timing DSL tokens (e.g. '<'/'['
// for input, '>'/']' for output).
func New(size int, textMarker, binMarker byte, disp Dispatcher) *Stream {
	s := &Stream{size: size, textMarker: textMarker, binMarker: binMarker, disp: disp}
	// Nested one level below a dispatcher's own top-level transactions
	// (e.g. chunk.Cut wraps both streams at level 0 while each stream's
	// own per-unit commits run at level 1), so the two never collide
	// over the dispatcher's snapshot slots.
	s.frame = trx.NewFrame(s, disp).Nested()
	return s
}

// Act implements trx.Participant.
func (s *Stream) Act(level int, action trx.Action) {
	switch action {
	case trx.Backup:
		s.slots.Backup(level, snapshot{
			txtLen: len(s.txt), binLen: len(s.bin),
			openKind: s.openKind, runCount: s.runCount,
			cutChars: s.cutChars, reserved: s.reserved,
			pending: s.pending,
		})
	case trx.Restore:
		snap := s.slots.Restore(level)
		s.txt = s.txt[:snap.txtLen]
		s.bin = s.bin[:snap.binLen]
		s.openKind = snap.openKind
		s.runCount = snap.runCount
		s.cutChars = snap.cutChars
		s.reserved = snap.reserved
		s.pending = snap.pending
	case trx.Discard:
		s.slots.Discard(level)
	}
}

func digits(n int) int {
	if n <= 0 {
		return 1
	}
	d := 0
	for n > 0 {
		d++
		n /= 10
	}
	return d
}

func (s *Stream) tokenCost() int {
	if s.openKind == runNone || s.runCount == 0 {
		return 0
	}
	cost := 1 + digits(s.runCount)
	if s.openKind == runBinary {
		cost += 1 + digits(s.cutChars)
	}
	return cost
}

func (s *Stream) tokenBytes() []byte {
	marker := s.textMarker
	if s.openKind == runBinary {
		marker = s.binMarker
	}
	tok := string(marker) + strconv.Itoa(s.runCount)
	if s.openKind == runBinary {
		tok += "/" + strconv.Itoa(s.cutChars)
	}
	return []byte(tok)
}

// closeRun emits the currently open run's timing token (consuming only
// space reserved while the run grew) and returns to the no-run state.
func (s *Stream) closeRun() bool {
	if s.openKind == runNone {
		return true
	}
	s.disp.WriteTiming(s.tokenBytes())
	s.openKind = runNone
	s.runCount = 0
	s.cutChars = 0
	s.reserved = 0
	return true
}

// growReservation reserves any additional timing bytes the open run's
// token now needs (e.g. it just grew an extra decimal digit).
func (s *Stream) growReservation() bool {
	want := s.tokenCost()
	if delta := want - s.reserved; delta > 0 {
		if !s.disp.Reserve(delta) {
			return false
		}
	}
	s.reserved = want
	return true
}

func (s *Stream) tryCommit(fn func() bool) bool {
	s.frame.Begin()
	ok := fn()
	if ok {
		s.frame.Commit()
	} else {
		s.frame.Abort()
	}
	return ok
}

func (s *Stream) commitChar(encoded []byte) bool {
	if len(s.txt)+len(encoded) > s.size {
		return false
	}
	if !s.disp.Reserve(len(encoded)) {
		return false
	}
	if s.openKind != runText {
		if !s.closeRun() {
			return false
		}
		s.openKind = runText
	}
	s.txt = append(s.txt, encoded...)
	s.runCount++
	return s.growReservation()
}

func encodeBinaryByte(priorRunCount int, b byte) []byte {
	enc := strconv.Itoa(int(b))
	if priorRunCount > 0 {
		return append([]byte{','}, enc...)
	}
	return []byte(enc)
}

// commitBinaryGroup dumps raw as one or more invalid bytes into the
// open binary run as a single atomic unit. cutIncrement is true when
// raw came from a previously-pending, now-abandoned UTF-8 sequence
// (i.e. this call is standing in for the stream cut operation's
// effect), which increments the run's M counter.
func (s *Stream) commitBinaryGroup(raw []byte, cutIncrement bool) bool {
	if s.openKind != runBinary {
		if !s.closeRun() {
			return false
		}
		s.openKind = runBinary
	}
	var encoded []byte
	runCount := s.runCount
	for _, b := range raw {
		enc := encodeBinaryByte(runCount, b)
		if len(s.bin)+len(encoded)+len(enc) > s.size {
			return false
		}
		encoded = append(encoded, enc...)
		runCount++
	}
	if !s.disp.Reserve(len(encoded)) {
		return false
	}
	s.bin = append(s.bin, encoded...)
	s.runCount = runCount
	if cutIncrement {
		s.cutChars++
	}
	return s.growReservation()
}

// escapeChar returns the JSON-text-field encoding of one complete
// character's bytes. Only single-byte (ASCII) characters are ever
// escaped: every continuation/lead byte of a multi-byte sequence is
// >= 0x80 and copied through unchanged.
func escapeChar(b []byte) []byte {
	if len(b) != 1 {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	switch c := b[0]; c {
	case '"':
		return []byte(`\"`)
	case '\\':
		return []byte(`\\`)
	case '\b':
		return []byte(`\b`)
	case '\f':
		return []byte(`\f`)
	case '\n':
		return []byte(`\n`)
	case '\r':
		return []byte(`\r`)
	case '\t':
		return []byte(`\t`)
	default:
		if c <= 0x1f || c == 0x7f {
			return []byte(fmt.Sprintf(`\u%04x`, c))
		}
		return []byte{c}
	}
}

// Write consumes as many leading bytes of in as fit within the
// stream's remaining-space budget, routing complete valid characters
// to the text sub-buffer and invalid bytes to the binary sub-buffer.
// It returns the number of bytes accepted, which may be less than
// len(in) or zero.
func (s *Stream) Write(in []byte) int {
	consumed := 0
	for _, b := range in {
		if s.pending.Add(b) {
			consumed++
			if s.pending.IsEnded() && s.pending.IsComplete() {
				raw := append([]byte(nil), s.pending.Bytes()...)
				charLen := len(raw)
				encoded := escapeChar(raw)
				s.pending.Reset()
				if !s.tryCommit(func() bool { return s.commitChar(encoded) }) {
					if charLen > consumed {
						// The character began in an earlier call: keep
						// those earlier bytes pending, accept none of in.
						for _, pb := range raw[:charLen-consumed] {
							s.pending.Add(pb)
						}
						return 0
					}
					consumed -= charLen
					return consumed
				}
			}
			continue
		}

		dangling := append([]byte(nil), s.pending.Bytes()...)
		s.pending.Reset()
		if len(dangling) > 0 {
			if !s.tryCommit(func() bool { return s.commitBinaryGroup(dangling, true) }) {
				return consumed
			}
		}

		if s.pending.Add(b) {
			consumed++
			if s.pending.IsEnded() && s.pending.IsComplete() {
				charLen := len(s.pending.Bytes())
				encoded := escapeChar(s.pending.Bytes())
				s.pending.Reset()
				if !s.tryCommit(func() bool { return s.commitChar(encoded) }) {
					consumed -= charLen
					return consumed
				}
			}
			continue
		}

		// b itself is invalid standalone (rejected with nothing buffered).
		s.pending.Reset()
		if !s.tryCommit(func() bool { return s.commitBinaryGroup([]byte{b}, false) }) {
			return consumed
		}
		consumed++
	}
	return consumed
}

// Flush closes any open run, writing its terminal timing token from
// space reserved while the run grew - it never consumes new budget.
func (s *Stream) Flush() {
	s.closeRun()
}

// Cut forces any pending, incomplete UTF-8 bytes into the binary
// sub-buffer as invalid bytes. It is a no-op returning true if nothing
// is pending; it returns false without effect if there isn't enough
// remaining space to record the dump.
func (s *Stream) Cut() bool {
	if !s.pending.IsStarted() {
		return true
	}
	dangling := append([]byte(nil), s.pending.Bytes()...)
	ok := s.tryCommit(func() bool { return s.commitBinaryGroup(dangling, true) })
	if ok {
		s.pending.Reset()
	}
	return ok
}

// Empty discards all accumulated text, binary, and run-counter state,
// but preserves any pending UTF-8 sequence in progress.
func (s *Stream) Empty() {
	s.txt = s.txt[:0]
	s.bin = s.bin[:0]
	s.openKind = runNone
	s.runCount = 0
	s.cutChars = 0
	s.reserved = 0
}

// Text returns the accumulated JSON-text-field payload.
func (s *Stream) Text() string { return string(s.txt) }

// Binary returns the accumulated comma-separated decimal byte list.
func (s *Stream) Binary() string { return string(s.bin) }

// IsEmpty reports whether the stream holds no committed content and no
// open run. Pending UTF-8 state does not count.
func (s *Stream) IsEmpty() bool {
	return len(s.txt) == 0 && len(s.bin) == 0 && s.openKind == runNone
}

// IsPending reports whether an incomplete UTF-8 sequence is buffered.
func (s *Stream) IsPending() bool { return s.pending.IsStarted() }
