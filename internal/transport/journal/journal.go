// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package journal implements the systemd-journal Reader/Writer variant:
// writing tags each message with the recording id, user, session and a
// priority; reading filters by a realtime-microsecond range and a
// field match list.
package journal

import (
	"fmt"
	"io"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/coreos/go-systemd/v22/sdjournal"
)

// Writer sends each message line to the local systemd journal,
// attaching identity fields a later `journalctl -o verbose` or
// sdjournal query can filter on.
type Writer struct {
	recording string
	user      string
	session   uint32
	priority  journal.Priority
}

// NewWriter returns a journal Writer tagging every message with the
// given recording id, user and session.
func NewWriter(recording, user string, session uint32, priority journal.Priority) (*Writer, error) {
	if !journal.Enabled() {
		return nil, fmt.Errorf("transport/journal: systemd journal is not available")
	}
	return &Writer{recording: recording, user: user, session: session, priority: priority}, nil
}

// Write sends line's content as one journal entry, tagged with id and
// this writer's fixed identity fields.
func (w *Writer) Write(id uint64, line []byte) error {
	vars := map[string]string{
		"TLOG_REC":     w.recording,
		"TLOG_USER":    w.user,
		"TLOG_SESSION": strconv.FormatUint(uint64(w.session), 10),
		"TLOG_MSG_ID":  strconv.FormatUint(id, 10),
	}
	if err := journal.Send(string(line), w.priority, vars); err != nil {
		return fmt.Errorf("transport/journal: sending entry: %w", err)
	}
	return nil
}

// Match is one systemd journal field match (e.g. "TLOG_USER=alice").
// Reader adds every entry in the list it's given as a separate journal
// match: matches on different fields AND together, while matches on the
// same field OR together (sd-journal's own combination rule).
type Match = sdjournal.Match

// Reader replays a systemd journal's TLOG_* entries within a
// realtime-microsecond window, additionally filtered by matches.
type Reader struct {
	j        *sdjournal.Journal
	cursors  map[int64]string
	nextLoc  int64
	untilUs  uint64
	hasUntil bool
}

// NewReader opens the local systemd journal, seeks to sinceUs (realtime
// microseconds since epoch), and applies every match. untilUs, if
// hasUntil is true, bounds how far Read will replay.
func NewReader(matches []Match, sinceUs, untilUs uint64, hasUntil bool) (*Reader, error) {
	j, err := sdjournal.NewJournal()
	if err != nil {
		return nil, fmt.Errorf("transport/journal: opening journal: %w", err)
	}
	for _, m := range matches {
		if err := j.AddMatch(m.String()); err != nil {
			j.Close()
			return nil, fmt.Errorf("transport/journal: adding match %q: %w", m.String(), err)
		}
	}
	if err := j.SeekRealtimeUsec(sinceUs); err != nil {
		j.Close()
		return nil, fmt.Errorf("transport/journal: seeking to start of range: %w", err)
	}
	return &Reader{j: j, cursors: map[int64]string{}, untilUs: untilUs, hasUntil: hasUntil}, nil
}

// Close releases the journal handle.
func (r *Reader) Close() error {
	return r.j.Close()
}

// Read returns the MESSAGE field of the next matching entry within the
// configured range, or io.EOF once the range (or the journal) is
// exhausted.
func (r *Reader) Read() ([]byte, int64, error) {
	n, err := r.j.Next()
	if err != nil {
		return nil, r.nextLoc, fmt.Errorf("transport/journal: advancing: %w", err)
	}
	if n == 0 {
		return nil, r.nextLoc, io.EOF
	}

	entry, err := r.j.GetEntry()
	if err != nil {
		return nil, r.nextLoc, fmt.Errorf("transport/journal: reading entry: %w", err)
	}
	if r.hasUntil && entry.RealtimeTimestamp > r.untilUs {
		return nil, r.nextLoc, io.EOF
	}

	msg, ok := entry.Fields["MESSAGE"]
	if !ok {
		return nil, r.nextLoc, fmt.Errorf("transport/journal: entry missing MESSAGE field")
	}

	loc := r.nextLoc
	r.cursors[loc] = entry.Cursor
	r.nextLoc++
	return []byte(msg), loc, nil
}

// LocFormat renders loc as the journal cursor it was read at.
func (r *Reader) LocFormat(loc int64) string {
	if cursor, ok := r.cursors[loc]; ok {
		return fmt.Sprintf("journal cursor %s", cursor)
	}
	return fmt.Sprintf("journal entry %d", loc)
}
