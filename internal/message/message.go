// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package message implements the wire-stable JSON message format: a
// sink that packs packets into chunks and emits one JSON line per
// chunk, and a source that does the inverse, replaying each message's
// timing DSL back into packets.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is the decoded shape of one wire JSON line. Timing/InTxt/
// OutTxt carry the escaped text exactly as it appeared on the wire -
// callers that need decoded characters use the source's DSL replay,
// not this struct directly.
type Message struct {
	Ver     string `json:"ver"`
	Host    string `json:"host"`
	Rec     string `json:"rec,omitempty"`
	User    string `json:"user"`
	Term    string `json:"term"`
	Session uint32 `json:"session"`
	ID      uint64 `json:"id"`
	Pos     Pos    `json:"pos"`
	Timing  string `json:"timing"`
	InTxt   string `json:"in_txt"`
	InBin   []int  `json:"in_bin"`
	OutTxt  string `json:"out_txt"`
	OutBin  []int  `json:"out_bin"`
}

// Pos is the message's position field: milliseconds from the
// recording's start, accepted either as a bare JSON number (current
// wire format) or as the legacy "SSS.NNN" string.
type Pos int64

// UnmarshalJSON accepts both representations listed in the wire format
// section: a JSON integer, or a legacy quoted "SSS.NNN" string.
func (p *Pos) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("pos: %w", err)
		}
		sec, nsMilli, ok := strings.Cut(s, ".")
		secVal, err := strconv.ParseInt(sec, 10, 64)
		if err != nil {
			return fmt.Errorf("pos: bad legacy seconds %q: %w", s, err)
		}
		var msVal int64
		if ok {
			msVal, err = strconv.ParseInt(nsMilli, 10, 64)
			if err != nil {
				return fmt.Errorf("pos: bad legacy milliseconds %q: %w", s, err)
			}
		}
		*p = Pos(secVal*1000 + msVal)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pos: %w", err)
	}
	*p = Pos(n)
	return nil
}

// MarshalJSON always emits the current plain-integer form.
func (p Pos) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(p), 10)), nil
}

// verCompatible reports whether ver is read-compatible with this
// implementation: exact "2.2", or any legacy "1.x" (accepted only by
// a caller that tolerates the absent-rec case; see validate).
func verCompatible(ver string) bool {
	return ver == "2.2" || strings.HasPrefix(ver, "1.")
}

// validate checks field presence/range per the wire format: ver
// compatibility, session and id ranges, and the "1.x must have no
// rec" shape (legacy messages never carried a recording id).
func (m *Message) validate() error {
	if !verCompatible(m.Ver) {
		return fmt.Errorf("unsupported message version %q", m.Ver)
	}
	if strings.HasPrefix(m.Ver, "1.") && m.Rec != "" {
		return fmt.Errorf("legacy message version %q must not carry rec", m.Ver)
	}
	if m.Host == "" {
		return fmt.Errorf("message missing host")
	}
	if m.User == "" {
		return fmt.Errorf("message missing user")
	}
	if m.Term == "" {
		return fmt.Errorf("message missing term")
	}
	if m.Session == 0 {
		return fmt.Errorf("session out of range [1, 2^32-1]: %d", m.Session)
	}
	if m.ID == 0 {
		return fmt.Errorf("id out of range [1, inf): %d", m.ID)
	}
	for _, v := range m.InBin {
		if v < 0 || v > 255 {
			return fmt.Errorf("in_bin entry out of byte range: %d", v)
		}
	}
	for _, v := range m.OutBin {
		if v < 0 || v > 255 {
			return fmt.Errorf("out_bin entry out of byte range: %d", v)
		}
	}
	return nil
}

func toBytes(vals []int) []byte {
	b := make([]byte, len(vals))
	for i, v := range vals {
		b[i] = byte(v)
	}
	return b
}

// escapeJSONString applies the exact escape set the wire format uses
// for in_txt/out_txt/identity fields: the same rule stream's
// character-at-a-time encoder applies, spelled out here for whole
// strings (hostname, username, terminal, recording id) that are
// escaped once at sink construction rather than byte by byte.
func escapeJSONString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c <= 0x1f || c == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
