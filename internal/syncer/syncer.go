// Package syncer keeps the persisted schedule slots of each performance
// equal to what its recurrence rule currently produces.
//
// A sync pass for one performance validates its dates, compiles the rule,
// resolves venue capacity, materializes the slots and then replaces the
// stored set: every old slot is deleted before the new ones are written,
// and the performance's denormalized summary is overwritten last.  When the
// store supports it (Replacer) the whole replacement happens in one
// transaction; otherwise the steps run in order and a failure between the
// delete and the write leaves the performance with no slots until the next
// successful run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/showtime-sync/internal/capacity"
	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/queue"
	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/schedule"
)

// ScheduleStore is the schedule persistence collaborator.
type ScheduleStore interface {
	KeysByPerformance(ctx context.Context, performanceID string) ([]string, error)
	DeleteByKeys(ctx context.Context, keys []string) (int64, error)
	CreateBulk(ctx context.Context, slots []model.Schedule) error
}

// SummarySink updates the denormalized schedules field of a performance.
type SummarySink interface {
	UpdateSummary(ctx context.Context, performanceID string, summary []model.DaySchedule) error
}

// Replacer is implemented by stores that can swap a performance's slots and
// summary atomically.
type Replacer interface {
	ReplaceForPerformance(ctx context.Context, performanceID string, slots []model.Schedule, summary []model.DaySchedule) (int64, error)
}

// Publisher announces completed syncs.  Publishing is best effort.
type Publisher interface {
	PublishScheduleSynced(ctx context.Context, ev queue.ScheduleSyncedEvent) error
}

// Options configures an Orchestrator.
type Options struct {
	Schedules ScheduleStore
	Summaries SummarySink
	Capacity  capacity.Resolver
	Publisher Publisher       // optional
	Logger    *zerolog.Logger // optional, defaults to a no-op logger

	// DefaultVenueID is used for performances without a venue.
	DefaultVenueID string
	// Strict fails a performance whose rule produced any diagnostic instead
	// of syncing what could be parsed.
	Strict bool
	// Concurrency bounds how many performances SyncAll processes at once.
	// Values below 1 mean one at a time.
	Concurrency int
	// Now stamps CreatedAt on generated slots.  Defaults to time.Now in UTC.
	Now func() time.Time
}

// Orchestrator runs sync passes.  It is safe for concurrent use; passes for
// the same performance are serialized.
type Orchestrator struct {
	opts  Options
	log   zerolog.Logger
	locks keyedMutex
}

// New builds an Orchestrator.  Schedules, Summaries and Capacity are
// required for SyncPerformance; Plan only needs Capacity.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{opts: opts, log: zerolog.Nop()}
	if opts.Logger != nil {
		o.log = opts.Logger.With().Str("component", "syncer").Logger()
	}
	if o.opts.Now == nil {
		o.opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.opts.Concurrency < 1 {
		o.opts.Concurrency = 1
	}
	return o
}

// Plan is the fully computed, not yet persisted, result for one performance.
type Plan struct {
	PerformanceID string
	Title         string
	VenueID       string
	Capacity      int
	Interval      schedule.DateInterval
	Rule          rule.Result
	Slots         []model.Schedule
	Summary       []model.DaySchedule
}

// Plan validates perf and materializes its slots without touching the
// store.  Errors are *Failure values.
func (o *Orchestrator) Plan(ctx context.Context, perf model.Performance) (*Plan, error) {
	pid := perf.Key()
	if pid == "" {
		return nil, fail(FailureInvalidPerformance, errors.New("performance has no performanceId or id"))
	}
	iv, err := schedule.ParseInterval(strings.TrimSpace(perf.StartDate), strings.TrimSpace(perf.EndDate))
	if err != nil {
		return nil, fail(FailureInvalidDateInterval, err)
	}
	if !iv.Valid() {
		return nil, fail(FailureInvalidDateInterval, fmt.Errorf("start date %s is after end date %s", perf.StartDate, perf.EndDate))
	}

	parsed := rule.Parse(perf.Schedule)
	if o.opts.Strict && len(parsed.Diagnostics) > 0 {
		return nil, fail(FailureMalformedRule, parsed.Err())
	}

	venueID := perf.Venue(o.opts.DefaultVenueID)
	if o.opts.Capacity == nil {
		return nil, fail(FailureCapacityLookup, errors.New("no capacity resolver configured"))
	}
	seats, err := o.opts.Capacity.Capacity(ctx, venueID)
	if err != nil {
		return nil, fail(FailureCapacityLookup, err)
	}
	if seats <= 0 {
		return nil, fail(FailureCapacityLookup, fmt.Errorf("venue %q has non-positive capacity %d", venueID, seats))
	}

	slots := schedule.Materialize(parsed.Rule, iv, schedule.Params{
		PerformanceID: pid,
		TotalSeats:    seats,
		Casting:       perf.Cast,
		CreatedAt:     o.opts.Now(),
	})
	return &Plan{
		PerformanceID: pid,
		Title:         perf.Title,
		VenueID:       venueID,
		Capacity:      seats,
		Interval:      iv,
		Rule:          parsed,
		Slots:         slots,
		Summary:       schedule.Summarize(slots),
	}, nil
}

// SyncPerformance makes the stored slots and summary of perf equal to its
// freshly materialized plan.  The returned Outcome carries any failure; it
// is never nil-valued on error.
func (o *Orchestrator) SyncPerformance(ctx context.Context, perf model.Performance) Outcome {
	return o.syncOne(ctx, "", perf)
}

func (o *Orchestrator) syncOne(ctx context.Context, runID string, perf model.Performance) Outcome {
	out := Outcome{PerformanceID: perf.Key(), Title: perf.Title}
	log := o.log.With().Str("performance_id", out.PerformanceID).Str("title", perf.Title).Logger()

	if err := ctx.Err(); err != nil {
		return out.failed(log, fail(FailureCancelled, err))
	}

	plan, err := o.Plan(ctx, perf)
	if err != nil {
		return out.failed(log, err)
	}
	out.VenueID = plan.VenueID
	out.Capacity = plan.Capacity
	out.Warnings = warnings(plan.Rule)
	for _, d := range plan.Rule.Diagnostics {
		log.Warn().Err(d.Err).Int("clause", d.Clause+1).Str("text", d.Text).Str("token", d.Token).Msg("rule clause dropped")
	}
	if len(plan.Rule.Rule) == 0 {
		log.Warn().Str("interval", plan.Interval.String()).Msg("no recurring shows configured for date range")
	}

	unlock := o.locks.lock(plan.PerformanceID)
	deleted, err := o.persist(ctx, plan)
	unlock()
	if err != nil {
		return out.failed(log, err)
	}
	out.Deleted = int(deleted)
	out.Generated = len(plan.Slots)
	out.Days = len(plan.Summary)

	log.Info().Str("venue_id", plan.VenueID).Int("capacity", plan.Capacity).
		Int("deleted", out.Deleted).Int("generated", out.Generated).Int("days", out.Days).
		Msg("schedules synced")

	// Published outside the lock; a slow broker must not hold up other syncs.
	o.publish(ctx, log, runID, plan, out)
	return out
}

// persist replaces the stored state.  Delete always completes before the
// write begins; a write is never attempted after a failed delete.
func (o *Orchestrator) persist(ctx context.Context, plan *Plan) (int64, error) {
	if o.opts.Schedules == nil || o.opts.Summaries == nil {
		return 0, fail(FailureInvalidPerformance, errors.New("no schedule store configured"))
	}
	if r, ok := o.opts.Schedules.(Replacer); ok {
		n, err := r.ReplaceForPerformance(ctx, plan.PerformanceID, plan.Slots, plan.Summary)
		if err != nil {
			return 0, fail(FailureReplace, err)
		}
		return n, nil
	}

	keys, err := o.opts.Schedules.KeysByPerformance(ctx, plan.PerformanceID)
	if err != nil {
		return 0, fail(FailureDelete, err)
	}
	deleted, err := o.opts.Schedules.DeleteByKeys(ctx, keys)
	if err != nil {
		return 0, fail(FailureDelete, err)
	}
	if err := o.opts.Schedules.CreateBulk(ctx, plan.Slots); err != nil {
		return deleted, fail(FailureWrite, err)
	}
	if err := o.opts.Summaries.UpdateSummary(ctx, plan.PerformanceID, plan.Summary); err != nil {
		return deleted, fail(FailureSummary, err)
	}
	return deleted, nil
}

func (o *Orchestrator) publish(ctx context.Context, log zerolog.Logger, runID string, plan *Plan, out Outcome) {
	if o.opts.Publisher == nil {
		return
	}
	ev := queue.ScheduleSyncedEvent{
		EventID:       uuid.NewString(),
		RunID:         runID,
		PerformanceID: plan.PerformanceID,
		Title:         plan.Title,
		VenueID:       plan.VenueID,
		TotalSeats:    plan.Capacity,
		Generated:     out.Generated,
		Deleted:       out.Deleted,
		Days:          out.Days,
		SyncedAt:      o.opts.Now().Format(time.RFC3339),
	}
	if n := len(plan.Slots); n > 0 {
		ev.FirstDate = plan.Slots[0].Date
		ev.LastDate = plan.Slots[n-1].Date
	}
	if err := o.opts.Publisher.PublishScheduleSynced(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("publish schedule.synced failed")
	}
}

// SyncAll runs a sync pass for every performance.  A failure for one
// performance never stops the others; each gets its own Outcome, in input
// order.
func (o *Orchestrator) SyncAll(ctx context.Context, perfs []model.Performance) Report {
	rep := Report{RunID: uuid.NewString(), StartedAt: o.opts.Now()}
	rep.Outcomes = make([]Outcome, len(perfs))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, perf := range perfs {
		g.Go(func() error {
			rep.Outcomes[i] = o.syncOne(ctx, rep.RunID, perf)
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = o.opts.Now()
	o.log.Info().Str("run_id", rep.RunID).Int("performances", len(perfs)).
		Int("generated", rep.Generated()).Int("failed", len(rep.Failed())).
		Msg("sync run finished")
	return rep
}

// DryRun plans every performance and reports what a sync would generate
// without touching the store or publishing anything.
func (o *Orchestrator) DryRun(ctx context.Context, perfs []model.Performance) Report {
	rep := Report{RunID: uuid.NewString(), StartedAt: o.opts.Now(), DryRun: true}
	rep.Outcomes = make([]Outcome, 0, len(perfs))
	for _, perf := range perfs {
		out := Outcome{PerformanceID: perf.Key(), Title: perf.Title}
		log := o.log.With().Str("performance_id", out.PerformanceID).Logger()
		plan, err := o.Plan(ctx, perf)
		if err != nil {
			rep.Outcomes = append(rep.Outcomes, out.failed(log, err))
			continue
		}
		out.VenueID = plan.VenueID
		out.Capacity = plan.Capacity
		out.Generated = len(plan.Slots)
		out.Days = len(plan.Summary)
		out.Warnings = warnings(plan.Rule)
		rep.Outcomes = append(rep.Outcomes, out)
	}
	rep.FinishedAt = o.opts.Now()
	return rep
}

func warnings(res rule.Result) []string {
	if len(res.Diagnostics) == 0 {
		return nil
	}
	out := make([]string, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		out = append(out, d.Error())
	}
	return out
}

// keyedMutex hands out one mutex per key.  Entries are never removed; the
// key space is the set of performances, which is small.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = map[string]*sync.Mutex{}
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
