// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	stdutf8 "unicode/utf8"

	"github.com/nishisan-dev/n-tlog/internal/pkt"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
)

// Reader is the external message source: one raw JSON line per call,
// or io.EOF at a clean end of stream. Loc is an opaque, reader-defined
// location value (a line number, a stream offset, a result index)
// used only to format error messages via LocFormat.
type Reader interface {
	Read() (line []byte, loc int64, err error)
	LocFormat(loc int64) string
}

// Sentinel errors distinguishing the source's own violations from a
// plain transport/decode failure.
var (
	ErrTerminalMismatch       = errors.New("message: terminal mismatch")
	ErrMsgIDOutOfOrder        = errors.New("message: message id out of order")
	ErrPktTimestampOutOfOrder = errors.New("message: packet timestamp out of order")
)

// pendingRun tracks partial consumption of one already-parsed timing
// token across Read calls, for runs longer than the caller's buffer.
type pendingRun struct {
	binary    bool
	output    bool
	remaining int
}

// Source is the inverse of Sink: it reads messages from a Reader,
// applies filters, enforces id/timestamp continuity, and replays each
// message's timing DSL into packets.
type Source struct {
	reader Reader

	hostname        string
	filterRecording bool
	recording       string
	username        string
	terminal        string
	sessionID       uint32
	lax             bool

	gotMsg      bool
	lastMsgID   uint64
	gotPkt      bool
	lastPktTS   timespec.Timespec
	gotWindow   bool
	lastWidth   uint16
	lastHeight  uint16

	timingRest string
	runningTS  timespec.Timespec
	inTxt      string
	outTxt     string
	inTxtPos   int
	outTxtPos  int
	inBin      []byte
	outBin     []byte
	inBinPos   int
	outBinPos  int

	pending *pendingRun
	atEOF   bool
	lastLoc int64
}

// SourceParams bundles Source's construction filters; zero values
// (empty string / 0) mean "unfiltered" for that field, matching the
// original's NULL-means-unfiltered convention.
type SourceParams struct {
	Hostname        string
	FilterRecording bool
	Recording       string
	Username        string
	Terminal        string
	SessionID       uint32
	Lax             bool
}

// NewSource returns a Source reading from r, filtered per params.
func NewSource(r Reader, params SourceParams) *Source {
	return &Source{
		reader:          r,
		hostname:        params.Hostname,
		filterRecording: params.FilterRecording,
		recording:       params.Recording,
		username:        params.Username,
		terminal:        params.Terminal,
		sessionID:       params.SessionID,
		lax:             params.Lax,
	}
}

// readMsg reads and filters messages until one passes every filter
// and continuity check, leaving the source positioned to replay it.
// It sets atEOF and returns nil at a clean end of stream.
func (s *Source) readMsg() error {
	for {
		line, loc, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			s.atEOF = true
			return nil
		}
		if err != nil {
			return err
		}

		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("%s: invalid message: %w", s.reader.LocFormat(loc), err)
		}
		if err := m.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.reader.LocFormat(loc), err)
		}

		if s.hostname != "" && m.Host != s.hostname {
			continue
		}
		if s.filterRecording && m.Rec != s.recording {
			continue
		}
		if s.username != "" && m.User != s.username {
			continue
		}
		if s.terminal != "" && m.Term != s.terminal {
			return fmt.Errorf("%s: %w", s.reader.LocFormat(loc), ErrTerminalMismatch)
		}
		if s.sessionID != 0 && m.Session != s.sessionID {
			continue
		}

		if s.gotMsg {
			outOfOrder := m.ID <= s.lastMsgID
			if !s.lax {
				outOfOrder = m.ID != s.lastMsgID+1
			}
			if outOfOrder {
				return fmt.Errorf("%s: %w", s.reader.LocFormat(loc), ErrMsgIDOutOfOrder)
			}
		}
		s.gotMsg = true
		s.lastMsgID = m.ID
		s.lastLoc = loc

		s.timingRest = m.Timing
		s.runningTS = timespec.FromMilliseconds(int64(m.Pos))
		s.inTxt, s.outTxt = m.InTxt, m.OutTxt
		s.inBin, s.outBin = toBytes(m.InBin), toBytes(m.OutBin)
		s.inTxtPos, s.outTxtPos, s.inBinPos, s.outBinPos = 0, 0, 0, 0
		return nil
	}
}

// decodeChar reads one logical character (one escape sequence, one
// ASCII byte, or one raw multi-byte UTF-8 sequence) from s at pos.
func decodeChar(s string, pos int) (raw []byte, next int, err error) {
	if pos >= len(s) {
		return nil, pos, io.ErrUnexpectedEOF
	}
	c := s[pos]
	if c == '\\' {
		if pos+1 >= len(s) {
			return nil, pos, io.ErrUnexpectedEOF
		}
		switch s[pos+1] {
		case '"':
			return []byte{'"'}, pos + 2, nil
		case '\\':
			return []byte{'\\'}, pos + 2, nil
		case 'b':
			return []byte{'\b'}, pos + 2, nil
		case 'f':
			return []byte{'\f'}, pos + 2, nil
		case 'n':
			return []byte{'\n'}, pos + 2, nil
		case 'r':
			return []byte{'\r'}, pos + 2, nil
		case 't':
			return []byte{'\t'}, pos + 2, nil
		case 'u':
			if pos+6 > len(s) {
				return nil, pos, io.ErrUnexpectedEOF
			}
			v, err := strconv.ParseUint(s[pos+2:pos+6], 16, 8)
			if err != nil {
				return nil, pos, fmt.Errorf("bad \\u escape in text field: %w", err)
			}
			return []byte{byte(v)}, pos + 6, nil
		default:
			return nil, pos, fmt.Errorf("unknown escape \\%c in text field", s[pos+1])
		}
	}
	if c < 0x80 {
		return []byte{c}, pos + 1, nil
	}
	r, size := stdutf8.DecodeRuneInString(s[pos:])
	if r == stdutf8.RuneError && size <= 1 {
		return nil, pos, fmt.Errorf("invalid utf-8 in text field")
	}
	return []byte(s[pos : pos+size]), pos + size, nil
}

func (s *Source) checkMonotonic(ts timespec.Timespec) error {
	if s.gotPkt && timespec.Less(ts, s.lastPktTS) {
		return ErrPktTimestampOutOfOrder
	}
	s.gotPkt = true
	s.lastPktTS = ts
	return nil
}

// Read returns the next replayed packet, using buf as the I/O packet's
// backing storage (buf is never retained past this call). It returns
// io.EOF at a clean end of stream, once every message has been
// replayed in full.
func (s *Source) Read(buf []byte) (pkt.Packet, error) {
	for {
		if s.pending == nil {
			if s.timingRest == "" {
				if s.atEOF {
					return pkt.Packet{}, io.EOF
				}
				if err := s.readMsg(); err != nil {
					return pkt.Packet{}, err
				}
				if s.atEOF {
					return pkt.Packet{}, io.EOF
				}
				continue
			}

			tok, rest, err := nextToken(s.timingRest)
			if err != nil {
				return pkt.Packet{}, err
			}
			s.timingRest = rest

			switch tok.kind {
			case tokDelay:
				s.runningTS = timespec.AddSaturate(s.runningTS, timespec.FromMilliseconds(int64(tok.n)))
				continue
			case tokWindow:
				w, h := uint16(tok.n), uint16(tok.m)
				if s.gotWindow && w == s.lastWidth && h == s.lastHeight {
					continue
				}
				s.gotWindow = true
				s.lastWidth, s.lastHeight = w, h
				p := pkt.NewWindow(s.runningTS, w, h)
				if err := s.checkMonotonic(p.Timestamp); err != nil {
					return pkt.Packet{}, err
				}
				return p, nil
			case tokTextIn, tokTextOut:
				if tok.n == 0 {
					continue
				}
				s.pending = &pendingRun{binary: false, output: tok.kind == tokTextOut, remaining: tok.n}
			case tokBinIn, tokBinOut:
				if tok.n == 0 {
					continue
				}
				s.pending = &pendingRun{binary: true, output: tok.kind == tokBinOut, remaining: tok.n}
			}
		}

		run := s.pending
		ts := s.runningTS
		// fillFromRun decrements run.remaining itself: for a text run
		// that's a character count, for a binary run a byte count, and
		// n below is always a byte count - the two only coincide for
		// binary runs.
		n, err := s.fillFromRun(run, buf)
		if err != nil {
			return pkt.Packet{}, err
		}
		if n == 0 {
			return pkt.Packet{}, fmt.Errorf("message: caller buffer too small to hold a single unit of the current run")
		}
		if run.remaining == 0 {
			s.pending = nil
		}
		p := pkt.NewIO(ts, run.output, buf[:n])
		if err := s.checkMonotonic(p.Timestamp); err != nil {
			return pkt.Packet{}, err
		}
		return p, nil
	}
}

// fillFromRun copies as much of run's remaining content into buf as
// fits, returning the number of bytes placed.
func (s *Source) fillFromRun(run *pendingRun, buf []byte) (int, error) {
	if run.binary {
		bin, pos := &s.inBin, &s.inBinPos
		if run.output {
			bin, pos = &s.outBin, &s.outBinPos
		}
		n := run.remaining
		if n > len(buf) {
			n = len(buf)
		}
		if *pos+n > len(*bin) {
			return 0, fmt.Errorf("timing: binary run exceeds available bytes")
		}
		copy(buf, (*bin)[*pos:*pos+n])
		*pos += n
		run.remaining -= n
		return n, nil
	}

	txt, pos := &s.inTxt, &s.inTxtPos
	if run.output {
		txt, pos = &s.outTxt, &s.outTxtPos
	}
	n := 0
	for run.remaining > 0 {
		raw, next, err := decodeChar(*txt, *pos)
		if err != nil {
			return 0, fmt.Errorf("timing: text run exceeds available characters: %w", err)
		}
		if n+len(raw) > len(buf) {
			break
		}
		copy(buf[n:], raw)
		n += len(raw)
		*pos = next
		run.remaining--
	}
	return n, nil
}

// Loc returns the opaque location of the last message the source
// accepted, and the reader's formatter for rendering it in an error
// message - e.g. "line 137" or "entry 12", depending on the reader.
func (s *Source) Loc() (int64, string) {
	return s.lastLoc, s.reader.LocFormat(s.lastLoc)
}
