package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/group-campaigns/internal/api"
	"github.com/LeventeLantos/group-campaigns/internal/cache"
	"github.com/LeventeLantos/group-campaigns/internal/client"
	"github.com/LeventeLantos/group-campaigns/internal/config"
	"github.com/LeventeLantos/group-campaigns/internal/db"
	"github.com/LeventeLantos/group-campaigns/internal/reconcile"
	"github.com/LeventeLantos/group-campaigns/internal/repo"
	"github.com/LeventeLantos/group-campaigns/internal/scheduler"
	"github.com/LeventeLantos/group-campaigns/internal/service"
	"github.com/LeventeLantos/group-campaigns/internal/status"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("campaigns service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("campaigns service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	campaigns := repo.NewPostgresCampaignRepo(pool)
	logs := repo.NewPostgresLogRepo(pool)
	endpoints := repo.NewPostgresEndpointRepo(pool)

	gateway := client.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout, logger)

	cronLoc := cfg.Scheduler.CronLocation

	var reporter service.Reporter = service.NopReporter{}
	if cfg.Report.Enabled {
		reporter = service.NewGatewayReporter(gateway, endpoints, logs, cfg.Report.Location, logger).
			WithCronLocation(cronLoc)
	}

	executor := service.NewExecutor(gateway, campaigns, logs, reporter, logger, service.ExecutorConfig{
		MediaBaseURL:  cfg.Gateway.MediaBaseURL,
		ThrottleDelay: cfg.Gateway.ThrottleDelay,
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, group names resolved from gateway only", "error", err)
		} else {
			executor.WithGroupNameCache(cache.NewRedisCache(rdb, cfg.Redis.TTL))
		}
	}

	registry := scheduler.NewRegistry(campaigns, executor, logger,
		scheduler.WithClock(cronClock(cronLoc)),
	)

	n, err := registry.Reload(ctx)
	if err != nil {
		return err
	}
	logger.Info("active campaigns scheduled", "count", n)

	sweeper := reconcile.NewSweeper(campaigns, endpoints, logs, registry, reconcile.Config{
		StaleAfter: cfg.Scheduler.StaleAfter,
		Retention:  cfg.Scheduler.LogRetention,
	}, logger)

	sweepLoop, err := scheduler.NewLoop("integrity-sweep", cfg.Scheduler.SweepInterval, sweeper.SweepTick,
		scheduler.WithLoopLogger(logger),
		scheduler.WithTickTimeout(5*time.Minute),
	)
	if err != nil {
		return err
	}
	cleanupLoop, err := scheduler.NewLoop("log-cleanup", cfg.Scheduler.CleanupInterval, sweeper.CleanupTick,
		scheduler.WithLoopLogger(logger),
		scheduler.WithDelayedStart(),
	)
	if err != nil {
		return err
	}
	monitor := reconcile.NewMonitor(campaigns, endpoints, logs, registry, logger)
	reportLoop, err := scheduler.NewLoop("system-report", cfg.Scheduler.ReportInterval, monitor.ReportTick,
		scheduler.WithLoopLogger(logger),
		scheduler.WithDelayedStart(),
	)
	if err != nil {
		return err
	}

	sweepLoop.Start()
	cleanupLoop.Start()
	reportLoop.Start()

	projector := status.NewProjector(campaigns, registry, cronClock(cronLoc)).WithCronLocation(cronLoc)
	handler := api.NewHandler(registry, projector, logs, sweeper, monitor)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		sweepLoop.Stop()
		cleanupLoop.Stop()
		reportLoop.Stop()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			registry.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

// cronClock is shared by every component that computes next executions.
func cronClock(loc *time.Location) func() time.Time {
	return func() time.Time { return time.Now().In(loc) }
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
