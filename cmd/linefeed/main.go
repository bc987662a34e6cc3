// Command linefeed scrapes live betting odds from the configured dashboard
// and serves them as JSON.
//
// Usage:
//
//	linefeed -config linefeed.yaml
//	TARGET_URL=https://example.com/live linefeed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtside/linefeed/internal/api"
	"github.com/courtside/linefeed/internal/browser"
	"github.com/courtside/linefeed/internal/cache"
	"github.com/courtside/linefeed/internal/config"
	"github.com/courtside/linefeed/internal/lockfile"
	"github.com/courtside/linefeed/internal/scrape"
	"github.com/courtside/linefeed/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to linefeed.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("linefeed: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock, err := lockfile.Acquire(filepath.Join(cfg.DataDir, "linefeed.lock"))
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(filepath.Join(cfg.DataDir, "linefeed.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	snapCache := cache.New(cfg.FreshnessThreshold)
	if snap, err := st.LoadLatest(ctx); err != nil {
		logger.Warn("linefeed: persisted snapshot unreadable", "error", err)
	} else if snap != nil {
		// Served (normally stale) until the first live cycle replaces it.
		snapCache.Put(snap)
		logger.Info("linefeed: restored snapshot",
			"captured_at", snap.CapturedAt, "live", len(snap.Live), "upcoming", len(snap.Upcoming))
	}

	chrome := browser.NewChromeEngine(cfg.UserAgent, logger)
	httpEng := browser.NewHTTPEngine(cfg.UserAgent)
	var acquirer *browser.Acquirer
	switch cfg.Engine {
	case "http":
		acquirer = browser.NewAcquirer(httpEng, chrome, logger)
	default:
		acquirer = browser.NewAcquirer(chrome, httpEng, logger)
	}
	defer acquirer.Close()

	artifacts, err := scrape.NewArtifactDir(cfg.DebugDir, cfg.MaxDebugArtifacts, logger)
	if err != nil {
		return err
	}

	sched := scrape.New(acquirer, snapCache, scrape.Config{
		TargetURL:         cfg.TargetURL,
		Interval:          cfg.ScrapeInterval,
		NavigationTimeout: cfg.NavigationTimeout,
		ExtractionTimeout: cfg.ExtractionTimeout,
	}, logger)
	sched.SetStore(st)
	sched.SetArtifacts(artifacts)
	go sched.Run(ctx)

	limiter := api.NewLimiter(cfg.MaxRequestsPerMinute, cfg.MaxTrackedClients, logger, "/healthz")
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(snapCache, sched, logger).Router(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("linefeed: listening", "addr", cfg.ListenAddr, "target", cfg.TargetURL, "engine", cfg.Engine)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("linefeed: shutdown", "error", err)
	}
	logger.Info("linefeed: stopped")
	return nil
}
