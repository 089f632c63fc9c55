// Command snapshot-collector subscribes to chat analytics events, tallies them
// per window and writes JSON snapshots for the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/WessleyAI/festa/engine/analytics"
	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/config"
	"github.com/WessleyAI/festa/pkg/natsutil"
)

const maxHistory = 288

func main() {
	dataDir := flag.String("dir", "data", "output directory")
	window := flag.Duration("window", 5*time.Minute, "snapshot window")
	topN := flag.Int("top", 10, "most recommended events to keep per snapshot")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.NATS.URL == "" {
		logger.Error("nats url is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := natsutil.Connect(cfg.NATS.URL, "festa-snapshot-collector", logger)
	if err != nil {
		logger.Error("nats connect", "err", err)
		os.Exit(1)
	}
	defer nc.Drain()

	tally := analytics.NewTally(time.Now().UTC(), *topN)
	sub, err := analytics.Subscribe(nc, cfg.NATS.Subject, func(_ context.Context, ev domain.ChatEvent) {
		tally.Add(ev)
	})
	if err != nil {
		logger.Error("subscribe", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	logger.Info("collecting chat snapshots", "subject", sub.Subject, "window", *window, "dir", *dataDir)
	collect(ctx, tally, *window, *dataDir, logger)
}

// collect writes a snapshot every window until ctx ends, then flushes the
// partial window.
func collect(ctx context.Context, tally *analytics.Tally, window time.Duration, dir string, logger *slog.Logger) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flush(tally, dir, logger)
			return
		case <-ticker.C:
			flush(tally, dir, logger)
		}
	}
}

func flush(tally *analytics.Tally, dir string, logger *slog.Logger) {
	s := tally.Rotate(time.Now().UTC())
	if err := writeSnapshot(dir, s); err != nil {
		logger.Error("write snapshot", "err", err)
		return
	}
	logger.Info("snapshot written", "requests", s.Requests, "users", s.Users,
		"fallbacks", s.ByOutcome[domain.OutcomeFallback])
}

// writeSnapshot replaces chat-latest.json and appends to chat-history.json,
// keeping the newest maxHistory entries.
func writeSnapshot(dir string, s analytics.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	latest, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chat-latest.json"), latest, 0o644); err != nil {
		return fmt.Errorf("write latest: %w", err)
	}

	historyPath := filepath.Join(dir, "chat-history.json")
	var history []analytics.Snapshot
	if data, err := os.ReadFile(historyPath); err == nil {
		if err := json.Unmarshal(data, &history); err != nil {
			return fmt.Errorf("read history: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	history = append(history, s)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return os.WriteFile(historyPath, data, 0o644)
}
