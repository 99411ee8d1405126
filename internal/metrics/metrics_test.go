// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewRegistryCountersStartAtZero(t *testing.T) {
	r := NewRegistry()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading /metrics body: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"ntlog_chunks_emitted_total 0",
		"ntlog_bytes_written_total 0",
		"ntlog_rate_limit_drops_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestRegistryIncrementsAreObservable(t *testing.T) {
	r := NewRegistry()
	r.ChunksEmitted.Add(3)
	r.BytesWritten.Add(128)
	r.RateLimitDelays.Inc()
	r.ActiveRecordings.Set(2)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	for _, want := range []string{
		"ntlog_chunks_emitted_total 3",
		"ntlog_bytes_written_total 128",
		"ntlog_rate_limit_delays_total 1",
		"ntlog_active_recordings 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	// A second Registry must not panic with "duplicate metrics collector
	// registration attempted", since each owns its own prometheus.Registry.
	_ = NewRegistry()
	_ = NewRegistry()
}

func TestServeStopsOnContextCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, "127.0.0.1:0")
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
