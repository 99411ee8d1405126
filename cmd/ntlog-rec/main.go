// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !windows

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/google/uuid"

	"github.com/nishisan-dev/n-tlog/internal/config"
	"github.com/nishisan-dev/n-tlog/internal/logging"
	"github.com/nishisan-dev/n-tlog/internal/message"
	"github.com/nishisan-dev/n-tlog/internal/metrics"
	"github.com/nishisan-dev/n-tlog/internal/pkt"
	"github.com/nishisan-dev/n-tlog/internal/retention"
	"github.com/nishisan-dev/n-tlog/internal/timespec"
	"github.com/nishisan-dev/n-tlog/internal/transport"
	journaltransport "github.com/nishisan-dev/n-tlog/internal/transport/journal"
)

func main() {
	configPath := flag.String("config", "/etc/ntlog/rec.yaml", "path to recorder config file")
	flag.Parse()

	cfg, err := config.LoadRecConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	if cfg.Recorder.Rec == "" {
		cfg.Recorder.Rec = uuid.NewString()
	}
	if cfg.Recorder.Session == 0 {
		if id, err := readAuditSessionID(); err == nil {
			cfg.Recorder.Session = id
		} else {
			logger.Warn("could not read audit session id, falling back to pid", "error", err)
			cfg.Recorder.Session = uint32(os.Getpid())
		}
	}

	logger = logger.With("rec", cfg.Recorder.Rec, "host", cfg.Recorder.Host, "user", cfg.Recorder.User)
	logger.Info("starting recorder", "transport", cfg.Output.Transport)

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
		reg.ActiveRecordings.Inc()
		defer reg.ActiveRecordings.Dec()
	}

	w, closer, err := openWriter(ctx, cfg)
	if err != nil {
		logger.Error("opening output transport", "error", err)
		os.Exit(1)
	}
	if reg != nil {
		w = &countingWriter{w: w, reg: reg}
	}

	var sched *retention.Scheduler
	if cfg.Retention.Enabled {
		maxAge, err := cfg.RetentionMaxAge()
		if err != nil {
			logger.Error("parsing retention.max_age", "error", err)
			os.Exit(1)
		}
		sched, err = retention.NewScheduler(cfg.Retention.Dir, maxAge, cfg.Retention.Schedule, logger)
		if err != nil {
			logger.Error("starting retention scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
	}

	sink, err := message.NewSink(w, cfg.Recorder.Host, cfg.Recorder.Rec, cfg.Recorder.User, cfg.Recorder.Term, cfg.Recorder.Session, chunkSizeFor(cfg))
	if err != nil {
		logger.Error("constructing sink", "error", err)
		os.Exit(1)
	}

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	go func() {
		for range sigHUP {
			logger.Info("received SIGHUP, flushing current chunk")
			if err := sink.Flush(); err != nil {
				logger.Error("flush on SIGHUP failed", "error", err)
			}
		}
	}()

	runErr := recordStdin(ctx, sink, logger)

	signal.Stop(sigHUP)
	close(sigHUP)

	if err := sink.Cut(); err != nil {
		logger.Error("cutting trailing incomplete sequence", "error", err)
	}
	if err := sink.Flush(); err != nil {
		logger.Error("final flush failed", "error", err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			logger.Error("closing output transport", "error", err)
		}
	}
	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		sched.Stop(stopCtx)
		cancel()
	}

	if runErr != nil {
		logger.Error("recording ended with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("recording complete")
}

// chunkSizeFor picks a chunk size generous enough for interactive
// terminal traffic without config exposing a knob not named by the
// recorder's own fields.
func chunkSizeFor(cfg *config.RecConfig) int {
	return 8192
}

// readAuditSessionID reads the Linux audit session id of this process,
// the way the original recorder identifies a session to stamp into
// every message it writes.
func readAuditSessionID() (uint32, error) {
	data, err := os.ReadFile("/proc/self/sessionid")
	if err != nil {
		return 0, fmt.Errorf("reading /proc/self/sessionid: %w", err)
	}
	var id uint32
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &id); err != nil {
		return 0, fmt.Errorf("parsing audit session id: %w", err)
	}
	if id == 0 || id == 0xffffffff {
		return 0, fmt.Errorf("no audit session assigned")
	}
	return id, nil
}

// countingWriter decorates a message.Writer with the byte/chunk
// counters a daemon's /metrics endpoint exposes.
type countingWriter struct {
	w   message.Writer
	reg *metrics.Registry
}

func (c *countingWriter) Write(id uint64, line []byte) error {
	if err := c.w.Write(id, line); err != nil {
		return err
	}
	c.reg.ChunksEmitted.Inc()
	c.reg.BytesWritten.Add(float64(len(line)))
	return nil
}

// openWriter builds the message.Writer for cfg.Output.Transport, along
// with its Closer if the transport needs cleanup at shutdown (nil
// otherwise). The result is wrapped in the rate-limiting decorator when
// cfg.RateLimit.Enabled.
func openWriter(ctx context.Context, cfg *config.RecConfig) (message.Writer, io.Closer, error) {
	var (
		w      message.Writer
		closer io.Closer
	)

	switch cfg.Output.Transport {
	case "fd":
		w = transport.NewFDWriter(ctx, os.Stdout)
	case "file":
		name := strings.ReplaceAll(cfg.Output.FileName, "{rec}", cfg.Recorder.Rec)
		codec := transport.CodecNone
		switch cfg.Output.Codec {
		case "gzip":
			codec = transport.CodecGzip
		case "zstd":
			codec = transport.CodecZstd
		}
		fw, err := transport.NewFileWriter(cfg.Output.Dir, name, codec, uint64(cfg.Output.MinFreeBytes))
		if err != nil {
			return nil, nil, err
		}
		w, closer = fw, fw
	case "syslog":
		sw, err := transport.NewSyslogWriter(cfg.Output.SyslogNetwork, cfg.Output.SyslogAddr, syslogPriority(cfg.Output.SyslogPriority), cfg.Output.SyslogTag)
		if err != nil {
			return nil, nil, err
		}
		w, closer = sw, sw
	case "journal":
		jw, err := journaltransport.NewWriter(cfg.Recorder.Rec, cfg.Recorder.User, cfg.Recorder.Session, journal.Priority(cfg.Output.JournalPriority))
		if err != nil {
			return nil, nil, err
		}
		w = jw
	default:
		return nil, nil, fmt.Errorf("unknown output transport %q", cfg.Output.Transport)
	}

	if cfg.RateLimit.Enabled {
		policy := transport.PolicyDelay
		if cfg.RateLimit.Policy == "drop" {
			policy = transport.PolicyDrop
		}
		w = transport.NewRateLimitWriter(ctx, w, float64(cfg.RateLimit.RateRaw), float64(cfg.RateLimit.BurstRaw), policy)
	}

	return w, closer, nil
}

// syslogPriority maps the plain severity-level integer this
// configuration carries onto log/syslog's combined facility/severity
// type, fixing the facility at LOG_USER.
func syslogPriority(level int) syslog.Priority {
	return syslog.Priority(syslog.LOG_USER) | syslog.Priority(level&0x7)
}

// recordStdin reads raw bytes from stdin - the packet source this
// recorder is handed in place of a live pseudo-terminal - and packs
// them into sink as output-direction I/O packets until EOF or ctx is
// cancelled.
func recordStdin(ctx context.Context, sink *message.Sink, logger *slog.Logger) error {
	r := bufio.NewReaderSize(os.Stdin, 64*1024)
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			logger.Info("recording interrupted by signal")
			return nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			p := pkt.NewIO(timespec.FromTime(time.Now()), true, buf[:n])
			if werr := sink.Write(p); werr != nil {
				return fmt.Errorf("writing packet to sink: %w", werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading packet source: %w", err)
		}
	}
}
