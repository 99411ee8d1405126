// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !windows

package transport

import (
	"fmt"
	"log/syslog"
)

// SyslogWriter writes complete message lines to the local syslog
// daemon at a fixed facility/severity, chosen once at construction -
// syslog has no notion of per-call priority once a connection is
// open.
type SyslogWriter struct {
	w *syslog.Writer
}

// NewSyslogWriter dials the local syslog daemon (or network addr if
// addr/network are non-empty) at priority, tagging every message with
// tag.
func NewSyslogWriter(network, addr string, priority syslog.Priority, tag string) (*SyslogWriter, error) {
	var (
		w   *syslog.Writer
		err error
	)
	if network == "" {
		w, err = syslog.New(priority, tag)
	} else {
		w, err = syslog.Dial(network, addr, priority, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dialing syslog: %w", err)
	}
	return &SyslogWriter{w: w}, nil
}

// Write sends line as one syslog record, at the priority fixed at
// construction.
func (s *SyslogWriter) Write(_ uint64, line []byte) error {
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("transport: syslog write: %w", err)
	}
	return nil
}

// Close releases the underlying syslog connection.
func (s *SyslogWriter) Close() error {
	return s.w.Close()
}
