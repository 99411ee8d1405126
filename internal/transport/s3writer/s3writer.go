// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package s3writer implements an archival message.Writer that buffers
// an entire recording in memory and uploads it as one S3 object on
// Close - an archival destination alongside the narrower fd/mem/
// syslog/journal writers, not a line-at-a-time transport.
package s3writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer accumulates message lines and uploads them as a single S3
// object at Close.
type Writer struct {
	client *s3.Client
	ctx    context.Context
	bucket string
	key    string
	buf    bytes.Buffer
}

// New returns a Writer that will upload to bucket/key when Close is
// called.
func New(ctx context.Context, client *s3.Client, bucket, key string) *Writer {
	return &Writer{client: client, ctx: ctx, bucket: bucket, key: key}
}

// Write appends line to the in-memory buffer. The upload itself only
// happens at Close, so a partial recording never appears in the
// bucket.
func (w *Writer) Write(_ uint64, line []byte) error {
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("s3writer: buffering line: %w", err)
	}
	return nil
}

// Close uploads the buffered recording as bucket/key.
func (w *Writer) Close() error {
	body := bytes.NewReader(w.buf.Bytes())
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("s3writer: uploading recording: %w", err)
	}
	return nil
}
