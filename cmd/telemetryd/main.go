package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dysonmetrics/telemetry/internal/config"
	"github.com/dysonmetrics/telemetry/internal/history"
	"github.com/dysonmetrics/telemetry/internal/recipe"
	"github.com/dysonmetrics/telemetry/internal/snapshot"
	"github.com/dysonmetrics/telemetry/internal/source"
	"github.com/dysonmetrics/telemetry/internal/stream"
	"github.com/dysonmetrics/telemetry/internal/toolapi"
	"github.com/dysonmetrics/telemetry/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = built-in defaults)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting telemetryd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	recipes, err := recipe.Load()
	if err != nil {
		logger.Error("failed to load recipe data", "error", err)
		os.Exit(1)
	}
	logger.Info("recipe data loaded",
		"items", recipes.ItemCount(),
		"recipes", recipes.RecipeCount(),
	)

	captures := snapshot.NewStore(cfg.Snapshots.Dir, logger.With("component", "snapshot"))

	streamCfg := stream.Config{
		URL:                   stream.FeedURL(cfg.Live.Host, cfg.Live.Port),
		ReconnectInitialDelay: cfg.Live.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Live.ReconnectMaxDelay,
		ReconnectMaxAttempts:  cfg.Live.ReconnectMaxAttempts,
	}
	client := stream.NewClient(streamCfg, logger.With("component", "stream"))

	router := source.NewRouter(source.Config{
		AutoFallback:  cfg.Router.AutoFallbackEnabled(),
		ProbeInterval: cfg.Router.ProbeInterval,
	}, client, captures, logger.With("component", "router"))

	// History recorder is optional; the daemon serves tools without it.
	var recorder *history.Recorder
	if cfg.History.Enabled {
		logger.Info("connecting to history database",
			"host", cfg.History.Database.Host,
			"port", cfg.History.Database.Port,
			"database", cfg.History.Database.Name,
		)
		pool, err := history.Connect(ctx, cfg.History.Database)
		if err != nil {
			logger.Error("failed to connect to history database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		recorder = history.NewRecorder(history.RecorderConfig{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, pool, logger.With("component", "history"))
		client.OnState(recorder.Record)

		if err := recorder.Start(ctx); err != nil {
			logger.Error("failed to start history recorder", "error", err)
			os.Exit(1)
		}
	}

	// First connection attempt is best effort; the router keeps probing
	// and snapshots can serve in the meantime.
	if err := router.ConnectLive(ctx); err != nil {
		logger.Warn("live feed not reachable at startup", "error", err)
	}

	api := toolapi.NewServer(router, captures, recipes, client, logger.With("component", "toolapi"))
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting tool server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("tool server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("telemetryd running",
		"live_url", streamCfg.URL,
		"tool_url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		"snapshots", captures.Dir(),
	)

	err = g.Wait()

	logger.Info("shutting down")

	if recorder != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		recorder.Stop(stopCtx)
		stopCancel()
	}
	router.Close()

	if err != nil {
		logger.Error("telemetryd stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("telemetryd stopped")
}

// loadConfig falls back to built-in defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
