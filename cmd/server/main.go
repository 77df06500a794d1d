package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iliyamo/showtime-sync/internal/app"
	"github.com/iliyamo/showtime-sync/internal/config"
	"github.com/iliyamo/showtime-sync/internal/handler"
	"github.com/iliyamo/showtime-sync/internal/logger"
	"github.com/iliyamo/showtime-sync/internal/middleware"
	"github.com/iliyamo/showtime-sync/internal/queue"
	"github.com/iliyamo/showtime-sync/internal/repository"
	"github.com/iliyamo/showtime-sync/internal/router"
)

const serviceName = "showtime-sync"

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		bootLog := logger.New(serviceName, "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log, app.Options{Publish: true})
	if err != nil {
		log.Fatal().Err(err).Msg("wire dependencies")
	}
	defer func() { _ = a.Close() }()

	if err := a.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	h := &handler.ScheduleHandler{
		Performances:    a.Performances,
		Slots:           a.Schedules,
		Syncer:          a.Syncer,
		CalendarOptions: a.CalendarOptions(),
		Log:             log,
	}
	deps := router.Deps{JWTSecret: cfg.JWTSecret}
	if a.Redis != nil {
		cc, err := config.LoadCacheConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("load cache config")
		}
		rl, err := config.LoadRateLimitConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("load rate limit config")
		}
		deps.Cache = middleware.NewRedisCache(cc, a.Redis)
		deps.RateLimit = middleware.NewTokenBucket(rl, a.Redis, log)
		h.Invalidate = func(ctx context.Context, pid string) {
			if n, err := middleware.InvalidatePerformance(ctx, a.Redis, cc.Prefix, pid); err != nil {
				log.Warn().Err(err).Str("performance_id", pid).Msg("cache invalidation failed")
			} else if n > 0 {
				log.Debug().Int("keys", n).Str("performance_id", pid).Msg("cache invalidated")
			}
		}
	}
	router.RegisterRoutes(e) // Register application routes
	router.RegisterSchedules(e, h, deps)

	go func() {
		err := queue.StartPerformanceConsumer(ctx, cfg.BrokerURL(), resync(a, h, log), log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("performance consumer stopped")
		}
	}()

	if cfg.SyncCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.SyncCron, func() { syncAll(ctx, a, h, log) }); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.SyncCron).Msg("invalid SYNC_CRON")
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		log.Info().Str("spec", cfg.SyncCron).Msg("periodic sync scheduled")
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("stopped")
}

// resync handles performance.changed events by syncing that performance.
// Events for performances that no longer exist are acknowledged and dropped.
func resync(a *app.App, h *handler.ScheduleHandler, log zerolog.Logger) queue.ChangeHandler {
	return func(ctx context.Context, ev queue.PerformanceChangedEvent) error {
		p, err := a.Performances.GetByID(ctx, ev.PerformanceID)
		if errors.Is(err, repository.ErrPerformanceNotFound) {
			log.Warn().Str("performance_id", ev.PerformanceID).Msg("changed performance not found; skipping")
			return nil
		}
		if err != nil {
			return err
		}
		out := a.Syncer.SyncPerformance(ctx, *p)
		if !out.OK() {
			return out.Err
		}
		if h.Invalidate != nil {
			h.Invalidate(ctx, out.PerformanceID)
		}
		return nil
	}
}

func syncAll(ctx context.Context, a *app.App, h *handler.ScheduleHandler, log zerolog.Logger) {
	perfs, err := a.Performances.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("periodic sync: list performances failed")
		return
	}
	rep := a.Syncer.SyncAll(ctx, perfs)
	for _, o := range rep.Outcomes {
		if o.OK() && h.Invalidate != nil {
			h.Invalidate(ctx, o.PerformanceID)
		}
	}
	log.Info().
		Str("run_id", rep.RunID).
		Int("performances", len(rep.Outcomes)).
		Int("failed", len(rep.Failed())).
		Int("generated", rep.Generated()).
		Msg("periodic sync finished")
}
