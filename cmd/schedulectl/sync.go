package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/showtime-sync/internal/app"
	"github.com/iliyamo/showtime-sync/internal/capacity"
	"github.com/iliyamo/showtime-sync/internal/config"
	"github.com/iliyamo/showtime-sync/internal/logger"
	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/repository"
	"github.com/iliyamo/showtime-sync/internal/syncer"
)

type syncFlags struct {
	performance     string
	file            string
	dryRun          bool
	strict          bool
	defaultVenue    string
	defaultCapacity int
	venueFile       string
	concurrency     int
}

func newSyncCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Regenerate schedule slots for one or all performances",
		Long: `Regenerate schedule slots from each performance's rule.

With --file and --dry-run the command runs offline: performances come from
a JSON export, capacity from --venue-file and --default-capacity, and
nothing is written.  Every other mode reads the database configured by the
DB_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "schedulectl", level)

			var (
				rep syncer.Report
				err error
			)
			if f.file != "" && f.dryRun {
				rep, err = runOffline(cmd.Context(), f, log)
			} else {
				rep, err = runOnline(cmd.Context(), f, log)
			}
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if failed := len(rep.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d performances failed", failed, len(rep.Outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.performance, "performance", "", "sync only this performance id")
	cmd.Flags().StringVar(&f.file, "file", "", "read performances from a JSON export instead of the database")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "plan only; report what would be written")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "fail performances whose rule has any diagnostic")
	cmd.Flags().StringVar(&f.defaultVenue, "default-venue", "charlotte-theater", "venue for performances without one (offline mode)")
	cmd.Flags().IntVar(&f.defaultCapacity, "default-capacity", 1240, "capacity when no source knows the venue (offline mode)")
	cmd.Flags().StringVar(&f.venueFile, "venue-file", "", "YAML venue capacity table (offline mode)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "performances synced at once; 0 keeps SYNC_CONCURRENCY")
	return cmd
}

func runOffline(ctx context.Context, f syncFlags, log zerolog.Logger) (syncer.Report, error) {
	perfs, err := repository.LoadPerformancesFile(f.file)
	if err != nil {
		return syncer.Report{}, err
	}
	perfs, err = selectPerformance(perfs, f.performance)
	if err != nil {
		return syncer.Report{}, err
	}
	static, err := capacity.LoadStatic(f.venueFile)
	if err != nil {
		return syncer.Report{}, err
	}
	o := syncer.New(syncer.Options{
		Capacity:       capacity.NewChain(f.defaultCapacity, static),
		Logger:         &log,
		DefaultVenueID: f.defaultVenue,
		Strict:         f.strict,
	})
	return o.DryRun(ctx, perfs), nil
}

func runOnline(ctx context.Context, f syncFlags, log zerolog.Logger) (syncer.Report, error) {
	cfg, err := config.Load()
	if err != nil {
		return syncer.Report{}, err
	}
	if f.concurrency > 0 {
		cfg.SyncConcurrency = f.concurrency
	}
	a, err := app.New(cfg, log, app.Options{Publish: !f.dryRun, Strict: f.strict})
	if err != nil {
		return syncer.Report{}, err
	}
	defer func() { _ = a.Close() }()

	var perfs []model.Performance
	switch {
	case f.file != "":
		perfs, err = repository.LoadPerformancesFile(f.file)
	case f.performance != "":
		var p *model.Performance
		if p, err = a.Performances.GetByID(ctx, f.performance); err == nil {
			perfs = []model.Performance{*p}
		}
	default:
		perfs, err = a.Performances.List(ctx)
	}
	if err != nil {
		return syncer.Report{}, err
	}
	if perfs, err = selectPerformance(perfs, f.performance); err != nil {
		return syncer.Report{}, err
	}

	if f.dryRun {
		return a.Syncer.DryRun(ctx, perfs), nil
	}
	return a.Syncer.SyncAll(ctx, perfs), nil
}

// selectPerformance narrows perfs to the one with key id.  An empty id
// keeps them all.
func selectPerformance(perfs []model.Performance, id string) ([]model.Performance, error) {
	if id == "" {
		return perfs, nil
	}
	for _, p := range perfs {
		if p.Key() == id {
			return []model.Performance{p}, nil
		}
	}
	return nil, fmt.Errorf("performance %q: %w", id, repository.ErrPerformanceNotFound)
}
