// Command splitledgerd serves a SplitLedger over HTTP.
//
// The record store is in memory. Set REDIS_ADDRESS to serialize balance
// refreshes through Redis, and scrape SERVER_METRICS_PATH for Prometheus
// metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/api"
	audithook "github.com/xraph/splitledger/audit_hook"
	"github.com/xraph/splitledger/lock/redislock"
	"github.com/xraph/splitledger/observability"
	"github.com/xraph/splitledger/store/memory"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("splitledgerd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []splitledger.Option{
		splitledger.WithLogger(logger),
		splitledger.WithStoreTimeout(cfg.Ledger.StoreTimeout),
		splitledger.WithRefreshRetries(cfg.Ledger.RefreshRetries),
		splitledger.WithReconcileInterval(cfg.Ledger.ReconcileInterval),
		splitledger.WithAsyncRefresh(cfg.Ledger.AsyncRefresh),
		splitledger.WithRefreshQueueSize(cfg.Ledger.RefreshQueueSize),
		splitledger.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		splitledger.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
	}

	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		opts = append(opts, splitledger.WithLocker(redislock.New(client,
			redislock.WithTTL(cfg.Redis.LockTTL),
			redislock.WithLogger(logger),
		)))
		logger.Info("using redis locks", "address", cfg.Redis.Address)
	}

	ledger := splitledger.New(memory.New(), opts...)
	if err := ledger.Start(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewHandler(ledger,
		api.WithLogger(logger),
		api.WithBasePath(cfg.Server.BasePath),
	).Engine()
	router.GET(cfg.Server.MetricsPath, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("splitledgerd listening", "addr", srv.Addr, "base_path", cfg.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := ledger.Stop(); err != nil {
		logger.Error("ledger stop failed", "error", err)
	}
	return serveErr
}

// auditLog writes audit events to the structured log.
func auditLog(logger *slog.Logger) audithook.RecorderFunc {
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"metadata", evt.Metadata,
		)
		return nil
	}
}
