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
	"syscall"
	"time"

	"dscd/config"
	"dscd/native/dsc"
	"dscd/observability/logging"
	otelobs "dscd/observability/otel"
	"dscd/oracle"
	"dscd/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dscd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.toml", "path to the dscd configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("dscd", cfg.Environment, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otelobs.Init(ctx, otelobs.Config{
			ServiceName: "dscd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	registry, err := dsc.NewAssetRegistry(cfg.AssetInfos())
	if err != nil {
		return err
	}

	priceOracle, err := buildOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}

	engine := dsc.NewEngine(registry, priceOracle)
	engine.SetLogger(logger)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(engine, cfg, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", "listen", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve rpc: %w", err)
		}
		return nil
	}
}

func buildOracle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dsc.PriceOracle, error) {
	switch cfg.Oracle.Mode {
	case config.OracleModeStatic:
		prices, err := cfg.StaticPrices()
		if err != nil {
			return nil, err
		}
		return oracle.NewStaticOracle(prices)
	case config.OracleModeFeeds:
		pairs, err := cfg.FeedPairs()
		if err != nil {
			return nil, err
		}
		sources := make([]oracle.Source, 0, len(cfg.Oracle.Sources))
		for _, src := range cfg.Oracle.Sources {
			source, err := oracle.NewHTTPSource(src.Name, src.URL, nil)
			if err != nil {
				return nil, err
			}
			sources = append(sources, source)
		}
		interval, err := cfg.Oracle.Interval()
		if err != nil {
			return nil, err
		}
		maxAge, err := cfg.Oracle.QuoteMaxAge()
		if err != nil {
			return nil, err
		}
		manager, err := oracle.NewFeedManager(pairs, sources, interval, maxAge, cfg.Oracle.MinFeeds, oracle.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		go func() {
			if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("oracle feed manager stopped", "error", err)
			}
		}()
		return manager, nil
	default:
		return nil, fmt.Errorf("unknown oracle mode %q", cfg.Oracle.Mode)
	}
}
