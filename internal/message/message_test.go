// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package message

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/n-tlog/internal/pkt"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
)

type fakeWriter struct {
	lines [][]byte
	ids   []uint64
}

func (w *fakeWriter) Write(id uint64, line []byte) error {
	w.ids = append(w.ids, id)
	w.lines = append(w.lines, append([]byte(nil), line...))
	return nil
}

type fakeReader struct {
	lines []string
	i     int
}

func (r *fakeReader) Read() ([]byte, int64, error) {
	if r.i >= len(r.lines) {
		return nil, 0, io.EOF
	}
	loc := int64(r.i + 1)
	line := r.lines[r.i]
	r.i++
	return []byte(line), loc, nil
}

func (r *fakeReader) LocFormat(loc int64) string {
	return fmt.Sprintf("line %d", loc)
}

func ts(sec, ms int64) timespec.Timespec {
	return timespec.FromTime(time.Unix(sec, ms*int64(time.Millisecond)))
}

func TestSinkFlushWireFormat(t *testing.T) {
	w := &fakeWriter{}
	s, err := NewSink(w, "host1", "rec1", "user1", "xterm", 42, 64)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	t0 := ts(1000, 0)
	if err := s.Write(pkt.NewIO(t0, true, []byte("hi"))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.lines) != 1 {
		t.Fatalf("expected 1 flushed line, got %d", len(w.lines))
	}
	line := string(w.lines[0])
	for _, want := range []string{
		`"ver":"2.2"`, `"host":"host1"`, `"rec":"rec1"`, `"user":"user1"`,
		`"term":"xterm"`, `"session":42`, `"id":1`, `"pos":0`,
		`"timing":">2"`, `"in_txt":""`, `"in_bin":[]`,
		`"out_txt":"hi"`, `"out_bin":[]`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected line to contain %q, got %q", want, line)
		}
	}
	if !strings.HasSuffix(line, "}\n") {
		t.Fatalf("expected line to end with '}\\n', got %q", line)
	}
}

func TestSinkMessageIDsSequential(t *testing.T) {
	w := &fakeWriter{}
	s, _ := NewSink(w, "h", "", "u", "t", 1, 16)
	t0 := ts(1000, 0)
	for i := 0; i < 3; i++ {
		s.Write(pkt.NewIO(t0, true, []byte("x")))
		s.Flush()
	}
	if len(w.ids) != 3 || w.ids[0] != 1 || w.ids[1] != 2 || w.ids[2] != 3 {
		t.Fatalf("expected sequential ids 1,2,3, got %v", w.ids)
	}
}

func TestPosAcceptsLegacyStringFormat(t *testing.T) {
	var m Message
	raw := `{"ver":"1.0","host":"h","user":"u","term":"t","session":1,"id":1,"pos":"1.500","timing":"","in_txt":"","in_bin":[],"out_txt":"","out_bin":[]}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Pos != 1500 {
		t.Fatalf("expected pos=1500ms from legacy '1.500', got %d", m.Pos)
	}
}

func TestPosAcceptsPlainInteger(t *testing.T) {
	var m Message
	raw := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":1,"pos":2500,"timing":"","in_txt":"","in_bin":[],"out_txt":"","out_bin":[]}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Pos != 2500 {
		t.Fatalf("expected pos=2500, got %d", m.Pos)
	}
}

func TestSinkToSourceRoundTrip(t *testing.T) {
	w := &fakeWriter{}
	s, _ := NewSink(w, "h", "", "u", "t", 7, 64)
	t0 := ts(1000, 0)
	t1 := ts(1000, 20)
	s.Write(pkt.NewIO(t0, false, []byte("ls\n")))
	s.Write(pkt.NewIO(t1, true, []byte("file.txt\n")))
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	lines := make([]string, len(w.lines))
	for i, l := range w.lines {
		lines[i] = string(l)
	}
	src := NewSource(&fakeReader{lines: lines}, SourceParams{})

	buf := make([]byte, 64)
	var gotIn, gotOut []byte
	for {
		p, err := src.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("source read: %v", err)
		}
		if p.Type != pkt.IO {
			continue
		}
		if p.IO.Output {
			gotOut = append(gotOut, p.IO.Buf...)
		} else {
			gotIn = append(gotIn, p.IO.Buf...)
		}
	}
	if string(gotIn) != "ls\n" {
		t.Fatalf("expected replayed input 'ls\\n', got %q", gotIn)
	}
	if string(gotOut) != "file.txt\n" {
		t.Fatalf("expected replayed output 'file.txt\\n', got %q", gotOut)
	}
}

func TestSourceTerminalMismatchErrors(t *testing.T) {
	line := `{"ver":"2.2","host":"h","user":"u","term":"vt100","session":1,"id":1,"pos":0,"timing":"","in_txt":"","in_bin":[],"out_txt":"","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{line}}, SourceParams{Terminal: "xterm"})
	_, err := src.Read(make([]byte, 8))
	if err == nil || !strings.Contains(err.Error(), "terminal mismatch") {
		t.Fatalf("expected terminal mismatch error, got %v", err)
	}
}

func TestSourceHostnameFilterSkipsSilently(t *testing.T) {
	wrong := `{"ver":"2.2","host":"other","user":"u","term":"t","session":1,"id":1,"pos":0,"timing":">1","in_txt":"A","in_bin":[],"out_txt":"","out_bin":[]}`
	right := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":2,"pos":0,"timing":">1","in_txt":"","in_bin":[],"out_txt":"B","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{wrong, right}}, SourceParams{Hostname: "h"})
	p, err := src.Read(make([]byte, 8))
	if err != nil {
		t.Fatalf("expected the matching message to be read, got err %v", err)
	}
	if string(p.IO.Buf) != "B" {
		t.Fatalf("expected to skip the non-matching host and read 'B', got %q", p.IO.Buf)
	}
}

func TestSourceStrictIDContinuityViolation(t *testing.T) {
	m1 := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":1,"pos":0,"timing":">1","in_txt":"","in_bin":[],"out_txt":"A","out_bin":[]}`
	m3 := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":3,"pos":10,"timing":">1","in_txt":"","in_bin":[],"out_txt":"B","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{m1, m3}}, SourceParams{})
	buf := make([]byte, 8)
	if _, err := src.Read(buf); err != nil {
		t.Fatalf("expected first message to read cleanly, got %v", err)
	}
	if _, err := src.Read(buf); err == nil || !strings.Contains(err.Error(), "out of order") {
		t.Fatalf("expected id-out-of-order error for a gap from 1 to 3, got %v", err)
	}
}

func TestSourceWindowCoalescing(t *testing.T) {
	m := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":1,"pos":0,"timing":"=80x24=80x24=100x30","in_txt":"","in_bin":[],"out_txt":"","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{m}}, SourceParams{})
	buf := make([]byte, 8)

	p1, err := src.Read(buf)
	if err != nil || p1.Type != pkt.Window || p1.Window.Width != 80 {
		t.Fatalf("expected first window 80x24, got %+v err=%v", p1, err)
	}
	p2, err := src.Read(buf)
	if err != nil || p2.Type != pkt.Window || p2.Window.Width != 100 {
		t.Fatalf("expected the repeated 80x24 to coalesce away and next window to be 100x30, got %+v err=%v", p2, err)
	}
}

func TestSourceDelayAdvancesTimestamp(t *testing.T) {
	m := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":1,"pos":0,"timing":">1+50>1","in_txt":"","in_bin":[],"out_txt":"AB","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{m}}, SourceParams{})
	buf := make([]byte, 8)

	p1, err := src.Read(buf)
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	p2, err := src.Read(buf)
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}
	delta := timespec.Sub(p2.Timestamp, p1.Timestamp)
	if delta.Milliseconds() != 50 {
		t.Fatalf("expected 50ms gap between the two runs, got %dms", delta.Milliseconds())
	}
}

func TestSourceBinaryRunReplay(t *testing.T) {
	m := `{"ver":"2.2","host":"h","user":"u","term":"t","session":1,"id":1,"pos":0,"timing":"[2/1","in_txt":"","in_bin":[240,157],"out_txt":"","out_bin":[]}`
	src := NewSource(&fakeReader{lines: []string{m}}, SourceParams{})
	p, err := src.Read(make([]byte, 8))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if p.Type != pkt.IO || p.IO.Output {
		t.Fatalf("expected an input IO packet, got %+v", p)
	}
	if len(p.IO.Buf) != 2 || p.IO.Buf[0] != 240 || p.IO.Buf[1] != 157 {
		t.Fatalf("expected raw bytes [240 157], got %v", p.IO.Buf)
	}
}
