// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package utf8 is a byte-at-a-time UTF-8 sequence validator. It feeds
// bytes one at a time and reports, after each byte, whether the
// candidate character is complete, invalid, or still pending - without
// ever consuming a byte that turns out to reject the sequence.
package utf8

// byteRange is an inclusive [Min, Max] byte value range. A range with
// Max == 0 terminates a sequence's range list.
type byteRange struct {
	Min, Max byte
}

// seq is one of the valid UTF-8 byte-sequence shapes: a list of
// per-position byte ranges, terminated by a zero range.
type seq struct {
	ranges [5]byteRange
}

// seqList is the Unicode 7 Chapter 3 Table 3-7 byte-range set: the nine
// valid UTF-8 sequence shapes, by leading-byte range.
var seqList = []seq{
	{[5]byteRange{{0x00, 0x7f}}},
	{[5]byteRange{{0xc2, 0xdf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xe0, 0xe0}, {0xa0, 0xbf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xe1, 0xec}, {0x80, 0xbf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xed, 0xed}, {0x80, 0x9f}, {0x80, 0xbf}}},
	{[5]byteRange{{0xee, 0xef}, {0x80, 0xbf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xf0, 0xf0}, {0x90, 0xbf}, {0x80, 0xbf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xf1, 0xf3}, {0x80, 0xbf}, {0x80, 0xbf}, {0x80, 0xbf}}},
	{[5]byteRange{{0xf4, 0xf4}, {0x80, 0x8f}, {0x80, 0xbf}, {0x80, 0xbf}}},
}

// State is a single UTF-8 sequence filter: at most four buffered bytes,
// the range expected next, the sequence length so far, and whether the
// sequence has ended (valid terminal or invalid rejection).
type State struct {
	buf   [4]byte
	ranges *[5]byteRange
	pos    int // index into ranges for the next expected range
	len    int
	ended  bool
}

// Reset clears the filter to its empty state.
func (s *State) Reset() {
	*s = State{}
}

// IsStarted reports whether any bytes have been buffered.
func (s *State) IsStarted() bool { return s.len > 0 }

// IsEnded reports whether a decision (complete or invalid) was reached.
func (s *State) IsEnded() bool { return s.ended }

// IsComplete reports whether the sequence ended as a valid character.
// Valid only after IsEnded returns true.
func (s *State) IsComplete() bool {
	return s.len > 0 && s.ranges[s.pos].Max == 0
}

// IsEmpty reports whether the sequence ended with zero bytes buffered
// (the first byte itself was rejected). Valid only after IsEnded.
func (s *State) IsEmpty() bool { return s.len == 0 }

// Bytes returns the bytes accepted so far (valid until the next Reset
// or Add call).
func (s *State) Bytes() []byte { return s.buf[:s.len] }

// Add tries to add b to the sequence. It returns true if b was valid
// and consumed, false if b was rejected - in which case b was NOT
// consumed and the caller must treat it as the first byte of the next
// attempt. Rejection also sets IsEnded. Add must not be called again
// after IsEnded returns true without an intervening Reset.
func (s *State) Add(b byte) bool {
	var r byteRange
	if s.len == 0 {
		found := false
		for i := range seqList {
			cand := seqList[i].ranges[0]
			if cand.Max == 0 {
				break
			}
			if b >= cand.Min && b <= cand.Max {
				s.ranges = &seqList[i].ranges
				s.pos = 0
				r = cand
				found = true
				break
			}
		}
		if !found {
			s.ended = true
			return false
		}
	} else {
		r = s.ranges[s.pos]
		if b < r.Min || b > r.Max {
			s.ended = true
			return false
		}
	}

	s.buf[s.len] = b
	s.len++
	s.pos++
	if s.ranges[s.pos].Max == 0 {
		s.ended = true
	}
	return true
}

// BufIsValid reports whether buf's entire contents is valid UTF-8 text,
// i.e. a concatenation of complete character sequences with nothing
// dangling at the end.
func BufIsValid(buf []byte) bool {
	var s State
	for _, b := range buf {
		if !s.Add(b) {
			return false
		}
		if s.IsEnded() {
			s.Reset()
		}
	}
	return !s.IsStarted()
}
