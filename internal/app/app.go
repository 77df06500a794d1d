// Package app assembles the collaborators shared by the HTTP server and the
// schedulectl command: database, Redis, capacity resolution, the event
// publisher and the sync orchestrator.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/showtime-sync/internal/calendar"
	"github.com/iliyamo/showtime-sync/internal/capacity"
	"github.com/iliyamo/showtime-sync/internal/config"
	"github.com/iliyamo/showtime-sync/internal/database"
	"github.com/iliyamo/showtime-sync/internal/repository"
	"github.com/iliyamo/showtime-sync/internal/service"
	"github.com/iliyamo/showtime-sync/internal/syncer"
)

// App holds the wired dependencies.  Redis and Publisher may be nil.
type App struct {
	Cfg          config.Config
	Log          zerolog.Logger
	DB           *sql.DB
	Redis        *redis.Client
	Performances *repository.PerformanceRepo
	Schedules    *repository.ScheduleRepo
	Capacity     capacity.Resolver
	Publisher    *service.QueuePublisher
	Syncer       *syncer.Orchestrator
}

// Options toggles optional infrastructure.
type Options struct {
	// Publish enables schedule.synced events.
	Publish bool
	// Strict overrides cfg.StrictRules when true.
	Strict bool
}

// New connects to MySQL (required) and Redis (optional) and builds the
// orchestrator.
func New(cfg config.Config, log zerolog.Logger, opt Options) (*App, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{
		Cfg:          cfg,
		Log:          log,
		DB:           db,
		Performances: repository.NewPerformanceRepo(db),
		Schedules:    repository.NewScheduleRepo(db),
	}

	if rc, err := config.LoadRedisConfig(); err != nil {
		log.Warn().Err(err).Msg("redis config invalid; running without redis")
	} else if a.Redis = config.NewRedisClient(rc); a.Redis == nil {
		log.Warn().Str("addr", rc.Address()).Msg("redis unreachable; caching and rate limiting disabled")
	}

	a.Capacity, err = NewCapacity(cfg, repository.NewVenueRepo(db), a.Redis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if opt.Publish {
		a.Publisher = service.NewQueuePublisher(cfg.BrokerURL(), log)
	}

	so := syncer.Options{
		Schedules:      a.Schedules,
		Summaries:      a.Performances,
		Capacity:       a.Capacity,
		Logger:         &a.Log,
		DefaultVenueID: cfg.DefaultVenueID,
		Strict:         cfg.StrictRules || opt.Strict,
		Concurrency:    cfg.SyncConcurrency,
	}
	if a.Publisher != nil {
		so.Publisher = a.Publisher
	}
	a.Syncer = syncer.New(so)
	return a, nil
}

// NewCapacity builds the venue capacity chain: the venues table, then the
// optional YAML file, then DEFAULT_CAPACITY.  With a Redis client only the
// venues table is cached, so a venue added later is picked up on the next
// lookup instead of the default being served until the TTL expires.
func NewCapacity(cfg config.Config, venues capacity.Resolver, rdb *redis.Client) (capacity.Resolver, error) {
	static, err := capacity.LoadStatic(cfg.VenueCapacityFile)
	if err != nil {
		return nil, err
	}
	if rdb != nil && venues != nil {
		venues = capacity.NewCached(venues, rdb, cfg.CapacityCacheTTL)
	}
	return capacity.NewChain(cfg.DefaultCapacity, venues, static), nil
}

// CalendarOptions derives feed settings from the configuration.
func (a *App) CalendarOptions() calendar.Options {
	loc, err := a.Cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return calendar.Options{Location: loc, Duration: a.Cfg.ShowDuration}
}

// EnsureSchema creates missing tables.
func (a *App) EnsureSchema(ctx context.Context) error {
	return database.EnsureSchema(ctx, a.DB)
}

// Close releases every connection the App opened.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil && !errors.Is(err, service.ErrNotConnected) {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
