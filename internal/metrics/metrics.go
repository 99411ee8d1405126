// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package metrics exposes Prometheus counters/gauges for the recorder and
// player daemons, served over /metrics via promhttp.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every counter/gauge the recorder and player daemons
// report, registered against its own prometheus.Registry rather than the
// global DefaultRegisterer so a process can run more than one recorder in
// tests without collector-already-registered panics.
type Registry struct {
	reg *prometheus.Registry

	ChunksEmitted    prometheus.Counter
	BytesWritten     prometheus.Counter
	RateLimitDelays  prometheus.Counter
	RateLimitDrops   prometheus.Counter
	ContinuityErrors prometheus.Counter
	GapErrors        prometheus.Counter
	ActiveRecordings prometheus.Gauge
}

// NewRegistry builds a Registry with every metric registered under a
// common "ntlog_" prefix.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_chunks_emitted_total",
			Help: "Total number of chunks emitted by the dispatcher.",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_bytes_written_total",
			Help: "Total number of message bytes written by a sink transport.",
		}),
		RateLimitDelays: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_rate_limit_delays_total",
			Help: "Total number of writes delayed by the rate-limiting writer.",
		}),
		RateLimitDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_rate_limit_drops_total",
			Help: "Total number of writes dropped by the rate-limiting writer in drop mode.",
		}),
		ContinuityErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_continuity_errors_total",
			Help: "Total number of message id/timestamp continuity violations observed by a source.",
		}),
		GapErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntlog_gap_errors_total",
			Help: "Total number of id gaps tolerated under lax continuity checking.",
		}),
		ActiveRecordings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ntlog_active_recordings",
			Help: "Number of recordings currently being written or replayed.",
		}),
	}
}

// Handler returns the HTTP handler serving this Registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
