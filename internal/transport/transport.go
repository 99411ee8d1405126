// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transport implements the external Reader/Writer variants a
// sink or source is handed: file descriptor, in-memory buffer, syslog,
// systemd journal, Elasticsearch, a rate-limiting decorator, and the
// supplementary archival writers (compressed file, S3).
package transport

import "errors"

// ErrInterrupted is returned by a Writer when a caller-initiated
// cancellation (context cancellation, a signal) aborts a write before
// any byte reached the transport. It is distinguished from a genuine
// I/O failure so a caller can retry the same message.
var ErrInterrupted = errors.New("transport: interrupted")
