// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nishisan-dev/n-tlog/internal/chunk"
	"github.com/nishisan-dev/n-tlog/internal/pkt"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
)

// MinChunkSize is the smallest chunk size the sink accepts - small
// enough to be a pathological test fixture, large enough that a
// single character can always be packed.
const MinChunkSize = 16

// Writer is the byte-oriented transport a Sink hands complete message
// lines to. Implementations (fd, mem, syslog, journal, rate-limiting
// decorator) live in internal/transport; this interface is declared
// here, on the consumer side, so that package doesn't need to import
// message.
type Writer interface {
	// Write hands one complete message line (including its trailing
	// newline) to the transport, tagged with its message id. It either
	// writes every byte or none, except when interrupted before any
	// byte was written.
	Write(id uint64, line []byte) error
}

// Sink turns packets into JSON message lines, packed through a Chunk.
type Sink struct {
	writer Writer

	hostname  string
	recording string
	username  string
	terminal  string
	sessionID uint32

	nextID  uint64
	started bool
	start   timespec.Timespec

	chunk *chunk.Chunk
}

// NewSink returns a Sink bounded to chunkSize bytes per message. The
// identity strings are JSON-escaped once, here, rather than on every
// flush.
func NewSink(w Writer, hostname, recording, username, terminal string, sessionID uint32, chunkSize int) (*Sink, error) {
	if w == nil {
		return nil, fmt.Errorf("message: sink writer must not be nil")
	}
	if hostname == "" || username == "" || terminal == "" {
		return nil, fmt.Errorf("message: sink requires non-empty host/user/term")
	}
	if sessionID == 0 {
		return nil, fmt.Errorf("message: sink session id must be non-zero")
	}
	if chunkSize < MinChunkSize {
		return nil, fmt.Errorf("message: chunk size %d below minimum %d", chunkSize, MinChunkSize)
	}
	return &Sink{
		writer:    w,
		hostname:  escapeJSONString(hostname),
		recording: escapeJSONString(recording),
		username:  escapeJSONString(username),
		terminal:  escapeJSONString(terminal),
		sessionID: sessionID,
		nextID:    1,
		chunk:     chunk.New(chunkSize),
	}, nil
}

// Write packs one packet into the sink's chunk, flushing and retrying
// as many times as needed when the chunk is too full to accept it in
// one piece. A void packet is a no-op: it neither resets nor advances
// anything.
func (s *Sink) Write(p pkt.Packet) error {
	if p.IsVoid() {
		return nil
	}
	if !s.started {
		s.started = true
		s.start = p.Timestamp
	}

	switch p.Type {
	case pkt.Window:
		for !s.chunk.WriteWindow(p.Timestamp, p.Window.Width, p.Window.Height) {
			if err := s.flush(); err != nil {
				return err
			}
		}
	case pkt.IO:
		pos := pkt.NewPos(p)
		for !pos.AtEnd(p) {
			n := s.chunk.Write(p.Timestamp, p.IO.Output, pos.Remaining(p))
			pos = pos.Advance(p, n)
			if !pos.AtEnd(p) {
				if err := s.flush(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Cut forces any pending incomplete UTF-8 into the chunk's binary
// sub-buffers, flushing first if there isn't room.
func (s *Sink) Cut() error {
	for !s.chunk.Cut() {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces out any pending message even if the chunk isn't full,
// e.g. at clean shutdown.
func (s *Sink) Flush() error {
	return s.flush()
}

func (s *Sink) flush() error {
	if s.chunk.IsEmpty() {
		return nil
	}
	s.chunk.Flush()

	pos := timespec.Sub(s.chunk.First(), s.start).Milliseconds()

	var b strings.Builder
	b.WriteString(`{"ver":"2.2","host":"`)
	b.WriteString(s.hostname)
	b.WriteString(`","rec":"`)
	b.WriteString(s.recording)
	b.WriteString(`","user":"`)
	b.WriteString(s.username)
	b.WriteString(`","term":"`)
	b.WriteString(s.terminal)
	b.WriteString(`","session":`)
	b.WriteString(strconv.FormatUint(uint64(s.sessionID), 10))
	b.WriteString(`,"id":`)
	b.WriteString(strconv.FormatUint(s.nextID, 10))
	b.WriteString(`,"pos":`)
	b.WriteString(strconv.FormatInt(pos, 10))
	b.WriteString(`,"timing":"`)
	b.WriteString(s.chunk.Timing())
	b.WriteString(`","in_txt":"`)
	b.WriteString(s.chunk.InputText())
	b.WriteString(`","in_bin":[`)
	b.WriteString(s.chunk.InputBinary())
	b.WriteString(`],"out_txt":"`)
	b.WriteString(s.chunk.OutputText())
	b.WriteString(`","out_bin":[`)
	b.WriteString(s.chunk.OutputBinary())
	b.WriteString("]}\n")

	if err := s.writer.Write(s.nextID, []byte(b.String())); err != nil {
		return err
	}
	s.nextID++
	s.chunk.Empty()
	return nil
}
