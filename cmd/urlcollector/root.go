package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clmercier/urlcollector/internal/api"
	"github.com/clmercier/urlcollector/internal/clock/system"
	"github.com/clmercier/urlcollector/internal/config"
	"github.com/clmercier/urlcollector/internal/dispatcher"
	collyfetcher "github.com/clmercier/urlcollector/internal/fetcher/colly"
	"github.com/clmercier/urlcollector/internal/logging"
	"github.com/clmercier/urlcollector/internal/metrics"
	"github.com/clmercier/urlcollector/internal/progress"
	"github.com/clmercier/urlcollector/internal/progress/sinks"
	"github.com/clmercier/urlcollector/internal/storage/postgres"
	"github.com/clmercier/urlcollector/internal/worker"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "urlcollector",
		Short:         "Breadth-first site crawler with a persistent URL frontier",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	store, err := postgres.NewFrontierStore(ctx, postgres.FrontierStoreConfig{
		DSN:   cfg.DB.DSN,
		Table: cfg.DB.Table,
	}, clock)
	if err != nil {
		return fmt.Errorf("open frontier store: %w", err)
	}
	defer store.Close()

	if err := store.Seed(ctx, cfg.Crawler.SeedURL); err != nil {
		return fmt.Errorf("seed frontier: %w", err)
	}
	logger.Info("frontier seeded",
		zap.String("seed_url", cfg.Crawler.SeedURL),
		zap.Bool("same_domain_only", cfg.Crawler.SameDomainOnly),
	)

	metrics.Init()
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		Logger: logger.Named("progress"),
	}, promSink, sinks.NewLogSink(logger.Named("events")))

	pool := dispatcher.New(ctx, func(id int, ctrl worker.Controls) dispatcher.Runner {
		fetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		})
		return worker.New(id, store, fetcher, ctrl, hub, clock, worker.Config{
			SeedHost:     cfg.SeedHost(),
			SameHostOnly: cfg.Crawler.SameDomainOnly,
		}, logger.Named("worker"))
	}, dispatcher.Config{
		MaxPages:     cfg.Crawler.MaxPages,
		DelaySeconds: cfg.Crawler.DelaySeconds,
		Logger:       logger.Named("pool"),
	})
	metrics.RegisterPoolGauges(prometheus.DefaultRegisterer, pool.Snapshot)

	pool.ScaleUp(cfg.Crawler.Workers)

	apiServer := api.NewServer(store, pool, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	pool.Stop()
	pool.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
