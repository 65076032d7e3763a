// ABOUTME: Wires the frontend, Direct Line client, correlation cache and ledger
// ABOUTME: Runs every loop under one errgroup and shuts down on signal

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/botline/internal/bridge"
	"github.com/2389/botline/internal/config"
	"github.com/2389/botline/internal/correlation"
	"github.com/2389/botline/internal/directline"
	"github.com/2389/botline/internal/feed"
	"github.com/2389/botline/internal/matrix"
	"github.com/2389/botline/internal/store"
	"github.com/2389/botline/internal/twitter"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-11s%s\n", label+":", value)
	}
	line("Config", configPath)
	line("Frontend", cfg.Frontend)
	line("DirectLine", cfg.DirectLine.BaseURL)
	line("Cache TTL", cfg.Bridge.CacheTTL.String())
	if cfg.Database.Path != "" {
		line("Ledger", cfg.Database.Path)
	}
	if cfg.Server.HTTPAddr != "" {
		line("HTTP", cfg.Server.HTTPAddr)
	}
	if cfg.Metrics.Enabled {
		line("Metrics", cfg.Metrics.OTLPEndpoint)
	}
	fmt.Println()

	logger.Info("starting botline",
		"config", configPath,
		"frontend", cfg.Frontend,
		"http_addr", cfg.Server.HTTPAddr,
	)

	return serve(ctx, cfg, logger)
}

func newFrontend(cfg *config.Config, logger *slog.Logger) (bridge.Frontend, error) {
	switch cfg.Frontend {
	case config.FrontendTwitter:
		return twitter.New(twitter.Config{
			APIBase:      cfg.Twitter.APIBase,
			BearerToken:  cfg.Twitter.BearerToken,
			UserID:       cfg.Twitter.UserID,
			PollInterval: cfg.Twitter.PollInterval,
			DedupeTTL:    cfg.Bridge.DedupeTTL,
			DedupeSize:   cfg.Bridge.DedupeSize,
		}, twitter.WithLogger(logger))
	case config.FrontendMatrix:
		return matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			AccessToken:  cfg.Matrix.AccessToken,
			AllowedRooms: cfg.Matrix.AllowedRooms,
			DedupeTTL:    cfg.Bridge.DedupeTTL,
			DedupeSize:   cfg.Bridge.DedupeSize,
		}, matrix.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown frontend %q", cfg.Frontend)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var ledger store.Store
	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer s.Close()
		ledger = s
	}

	provider, shutdownMetrics, err := setupMetrics(ctx, cfg.Metrics, cfg.Frontend)
	if err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	cache, err := correlation.New(cfg.Bridge.CacheTTL)
	if err != nil {
		return fmt.Errorf("creating correlation cache: %w", err)
	}

	dl := directline.NewClient(cfg.DirectLine.BaseURL, cfg.DirectLine.Secret, directline.WithLogger(logger))

	frontend, err := newFrontend(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating %s frontend: %w", cfg.Frontend, err)
	}

	events := feed.NewBroadcaster(logger)
	defer events.Close()

	opts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithFeed(events),
		bridge.WithMetrics(bridge.NewMetricsRecorder(provider)),
		bridge.WithIgnoredSender(cfg.DirectLine.BotUserID),
	}
	if ledger != nil {
		opts = append(opts, bridge.WithLedger(ledger))
	}
	orch := bridge.NewOrchestrator(cache, dl, frontend, opts...)

	reg, err := bridge.ObserveStats(provider, orch)
	if err != nil {
		return fmt.Errorf("registering gauges: %w", err)
	}
	defer func() { _ = reg.Unregister() }()

	messages := make(chan bridge.InboundMessage, 32)
	activities := make(chan []directline.Activity, 8)
	replies := make(chan []bridge.BotReply, 8)

	if err := orch.Attach(messages, replies); err != nil {
		return fmt.Errorf("attaching orchestrator: %w", err)
	}
	defer orch.Detach()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(messages)
		if err := frontend.Run(gctx, messages); err != nil {
			return fmt.Errorf("%s frontend: %w", frontend.Name(), err)
		}
		return nil
	})

	g.Go(func() error {
		defer close(activities)
		if err := dl.Run(gctx, cfg.DirectLine.PollInterval, activities); err != nil {
			return fmt.Errorf("direct line: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer close(replies)
		return pumpReplies(gctx, activities, replies)
	})

	g.Go(func() error {
		retryLoop(gctx, orch, cfg.Bridge.RetryInterval, logger)
		return nil
	})

	if cfg.Server.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           bridge.NewHTTPHandler(orch),
			ReadHeaderTimeout: 10 * time.Second,
			// Cancels event streams on shutdown
			BaseContext: func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutting down botline")
	return err
}

// pumpReplies converts polled activity batches into bot reply batches.
func pumpReplies(ctx context.Context, in <-chan []directline.Activity, out chan<- []bridge.BotReply) error {
	for batch := range in {
		replies := bridge.RepliesFromActivities(batch)
		if len(replies) == 0 {
			continue
		}
		select {
		case out <- replies:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// retryLoop re-attempts matched deliveries that previously failed.
func retryLoop(ctx context.Context, orch *bridge.Orchestrator, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := orch.Sweep(ctx); n > 0 {
				logger.Info("retried pending deliveries", "delivered", n)
			}
		}
	}
}
