// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !windows

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/n-tlog/internal/config"
	"github.com/nishisan-dev/n-tlog/internal/logging"
	"github.com/nishisan-dev/n-tlog/internal/message"
	"github.com/nishisan-dev/n-tlog/internal/metrics"
	"github.com/nishisan-dev/n-tlog/internal/pkt"
	"github.com/nishisan-dev/n-tlog/internal/transport"
	journaltransport "github.com/nishisan-dev/n-tlog/internal/transport/journal"
)

func main() {
	configPath := flag.String("config", "/etc/ntlog/play.yaml", "path to player config file")
	speedFlag := flag.Float64("speed", -1, "override playback.speed from the config file (0 = as fast as possible, 1 = real time)")
	flag.Parse()

	cfg, err := config.LoadPlayConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *speedFlag >= 0 {
		cfg.Playback.Speed = *speedFlag
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		go func() {
			if err := reg.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	r, closer, err := openReader(ctx, cfg)
	if err != nil {
		logger.Error("opening input transport", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	src := message.NewSource(r, sourceParams(cfg))

	if err := replay(ctx, src, cfg, reg, logger); err != nil {
		logger.Error("playback ended with error", "error", err)
		os.Exit(1)
	}
	logger.Info("playback complete")
}

func sourceParams(cfg *config.PlayConfig) message.SourceParams {
	return message.SourceParams{
		Hostname:        cfg.Input.FilterHost,
		FilterRecording: cfg.Input.FilterRecording != "",
		Recording:       cfg.Input.FilterRecording,
		Username:        cfg.Input.FilterUser,
		Terminal:        cfg.Input.ExpectTerm,
		SessionID:       cfg.Input.FilterSession,
		Lax:             !cfg.Input.StrictContinuity,
	}
}

// openReader builds the message.Reader for cfg.Input.Transport, along
// with its Closer if the transport needs cleanup at shutdown (nil
// otherwise).
func openReader(ctx context.Context, cfg *config.PlayConfig) (message.Reader, io.Closer, error) {
	switch cfg.Input.Transport {
	case "fd":
		if cfg.Input.Path == "" {
			return transport.NewFDReader(os.Stdin), nil, nil
		}
		f, err := os.Open(cfg.Input.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening input file: %w", err)
		}
		return transport.NewFDReader(f), f, nil
	case "file":
		rc, err := transport.OpenFileReader(cfg.Input.Path, codecForPath(cfg.Input.Path))
		if err != nil {
			return nil, nil, err
		}
		return transport.NewFDReader(rc), rc, nil
	case "journal":
		matches := make([]journaltransport.Match, 0, len(cfg.Input.JournalMatches))
		for _, m := range cfg.Input.JournalMatches {
			field, value, ok := strings.Cut(m, "=")
			if !ok {
				return nil, nil, fmt.Errorf("invalid journal match %q, expected FIELD=value", m)
			}
			matches = append(matches, journaltransport.Match{Field: field, Value: value})
		}
		jr, err := journaltransport.NewReader(matches, cfg.Input.SinceUnixMicro, cfg.Input.UntilUnixMicro, cfg.Input.HasUntil)
		if err != nil {
			return nil, nil, err
		}
		return jr, jr, nil
	case "elasticsearch":
		er, err := transport.NewESReader(ctx, http.DefaultClient, cfg.Input.ESBaseURL, cfg.Input.ESQuery, cfg.Input.ESPageSize)
		if err != nil {
			return nil, nil, err
		}
		return er, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown input transport %q", cfg.Input.Transport)
	}
}

// codecForPath guesses a recording file's compression from its
// extension. NewFileWriter uses the final name it is given as is
// (ntlog-rec's default is "{rec}.jsonl" for every codec), so a compressed
// recording is only detected when its name ends in ".gz" or ".zst".
func codecForPath(path string) transport.Codec {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return transport.CodecGzip
	case strings.HasSuffix(path, ".zst"):
		return transport.CodecZstd
	default:
		return transport.CodecNone
	}
}

// replay drains src, writing each I/O packet's bytes to stdout and
// discarding window-size packets (there is no real terminal here to
// resize). Packet emission is paced against wall-clock time per
// cfg.Playback.Speed by a playbackPacer. When cfg.Playback.RateLimit is
// enabled, the bytes written to stdout are additionally bounded by a
// token-bucket limiter built from its configured rate and burst, not by
// the transport package's rate-limiting writer.
func replay(ctx context.Context, src *message.Source, cfg *config.PlayConfig, reg *metrics.Registry, logger *slog.Logger) error {
	var limiter *rate.Limiter
	if cfg.Playback.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(cfg.Playback.RateLimit.RateRaw), int(cfg.Playback.RateLimit.BurstRaw))
	}

	var (
		pacer   *playbackPacer
		buf     = make([]byte, 32*1024)
		started bool
	)
	if cfg.Playback.Speed > 0 {
		pacer = newPlaybackPacer(cfg.Playback.Speed)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("playback interrupted by signal")
			return nil
		default:
		}

		p, err := src.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if reg != nil {
				reg.ContinuityErrors.Inc()
			}
			return err
		}

		if pacer != nil {
			if !started {
				started = true
				pacer.start(p.Timestamp)
			} else if err := pacer.waitUntil(ctx, p.Timestamp); err != nil {
				return err
			}
		}

		switch p.Type {
		case pkt.IO:
			if limiter != nil {
				if err := limiter.WaitN(ctx, len(p.IO.Buf)); err != nil {
					return fmt.Errorf("pacing playback: %w", err)
				}
			}
			if _, err := os.Stdout.Write(p.IO.Buf); err != nil {
				return fmt.Errorf("writing replayed bytes: %w", err)
			}
			if reg != nil {
				reg.BytesWritten.Add(float64(len(p.IO.Buf)))
			}
		case pkt.Window:
			logger.Debug("window resize", "width", p.Window.Width, "height", p.Window.Height)
		}
	}
}
