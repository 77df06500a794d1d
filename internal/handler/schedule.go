package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/showtime-sync/internal/calendar"
	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/repository"
	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/schedule"
	"github.com/iliyamo/showtime-sync/internal/syncer"
)

// PerformanceSource reads performances.
type PerformanceSource interface {
	List(ctx context.Context) ([]model.Performance, error)
	GetByID(ctx context.Context, id string) (*model.Performance, error)
}

// SlotLister reads persisted slots.
type SlotLister interface {
	ListByPerformance(ctx context.Context, performanceID string) ([]model.Schedule, error)
}

// ScheduleHandler serves previews, calendar feeds and sync triggers.
type ScheduleHandler struct {
	Performances    PerformanceSource
	Slots           SlotLister
	Syncer          *syncer.Orchestrator
	CalendarOptions calendar.Options
	Log             zerolog.Logger
	// Invalidate, when set, runs after a performance was synced so cached
	// previews and feeds are dropped.
	Invalidate func(ctx context.Context, performanceID string)
}

// PreviewResponse is the body of the preview endpoint.
type PreviewResponse struct {
	PerformanceID string              `json:"performanceId"`
	VenueID       string              `json:"venueId"`
	Capacity      int                 `json:"capacity"`
	Interval      string              `json:"interval"`
	Count         int                 `json:"count"`
	Rule          RuleResponse        `json:"rule"`
	Schedules     []model.DaySchedule `json:"schedules"`
	Slots         []model.Schedule    `json:"slots,omitempty"`
}

func (h *ScheduleHandler) performance(c echo.Context) (*model.Performance, error) {
	p, err := h.Performances.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrPerformanceNotFound) {
			return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
		}
		h.Log.Error().Err(err).Str("performance_id", c.Param("id")).Msg("load performance failed")
		return nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return p, nil
}

// Preview materializes a performance's slots without persisting them.
// ?slots=true includes the individual records.
func (h *ScheduleHandler) Preview(c echo.Context) error {
	p, err := h.performance(c)
	if p == nil {
		return err
	}
	plan, err := h.Syncer.Plan(c.Request().Context(), *p)
	if err != nil {
		return failureJSON(c, p.Key(), err)
	}
	out := PreviewResponse{
		PerformanceID: plan.PerformanceID,
		VenueID:       plan.VenueID,
		Capacity:      plan.Capacity,
		Interval:      plan.Interval.String(),
		Count:         len(plan.Slots),
		Rule:          NewRuleResponse(p.Schedule, plan.Rule),
		Schedules:     plan.Summary,
	}
	if withSlots, _ := strconv.ParseBool(c.QueryParam("slots")); withSlots {
		out.Slots = plan.Slots
	}
	return c.JSON(http.StatusOK, out)
}

// Calendar serves an iCalendar feed.  The default feed lists persisted
// slots; ?mode=recurring emits weekly RRULE events compiled from the rule.
func (h *ScheduleHandler) Calendar(c echo.Context) error {
	p, err := h.performance(c)
	if p == nil {
		return err
	}
	ctx := c.Request().Context()

	var body string
	switch c.QueryParam("mode") {
	case "", "expanded":
		slots, err := h.Slots.ListByPerformance(ctx, p.Key())
		if err != nil {
			h.Log.Error().Err(err).Str("performance_id", p.Key()).Msg("list schedules failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		body = calendar.Expanded(*p, slots, h.CalendarOptions).Serialize()
	case "recurring":
		iv, err := schedule.ParseInterval(p.StartDate, p.EndDate)
		if err != nil {
			return failureJSON(c, p.Key(), err)
		}
		cal, err := calendar.Recurring(*p, rule.Parse(p.Schedule).Rule, iv, h.CalendarOptions)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}
		body = cal.Serialize()
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mode must be expanded or recurring"})
	}
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

// SyncOne regenerates one performance.  ?dry_run=true only plans it.
func (h *ScheduleHandler) SyncOne(c echo.Context) error {
	p, err := h.performance(c)
	if p == nil {
		return err
	}
	ctx := c.Request().Context()
	if dry, _ := strconv.ParseBool(c.QueryParam("dry_run")); dry {
		rep := h.Syncer.DryRun(ctx, []model.Performance{*p})
		return c.JSON(statusFor(rep.Outcomes[0]), rep.Outcomes[0])
	}
	out := h.Syncer.SyncPerformance(ctx, *p)
	if out.OK() && h.Invalidate != nil {
		h.Invalidate(ctx, out.PerformanceID)
	}
	return c.JSON(statusFor(out), out)
}

// SyncAll regenerates every performance and returns the batch report.
// Individual failures are part of the report, not an HTTP error.
func (h *ScheduleHandler) SyncAll(c echo.Context) error {
	ctx := c.Request().Context()
	perfs, err := h.Performances.List(ctx)
	if err != nil {
		h.Log.Error().Err(err).Msg("list performances failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if dry, _ := strconv.ParseBool(c.QueryParam("dry_run")); dry {
		return c.JSON(http.StatusOK, h.Syncer.DryRun(ctx, perfs))
	}
	rep := h.Syncer.SyncAll(ctx, perfs)
	if h.Invalidate != nil {
		for _, o := range rep.Outcomes {
			if o.OK() {
				h.Invalidate(ctx, o.PerformanceID)
			}
		}
	}
	return c.JSON(http.StatusOK, rep)
}

// statusFor maps an outcome to an HTTP status: input problems are 422,
// storage problems 502.
func statusFor(o syncer.Outcome) int {
	switch o.Kind {
	case "":
		return http.StatusOK
	case syncer.FailureInvalidPerformance, syncer.FailureInvalidDateInterval, syncer.FailureMalformedRule:
		return http.StatusUnprocessableEntity
	case syncer.FailureCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func failureJSON(c echo.Context, pid string, err error) error {
	kind := syncer.KindOf(err)
	if kind == "" {
		kind = syncer.FailureInvalidDateInterval
	}
	out := syncer.Outcome{PerformanceID: pid, Kind: kind, Err: err, Error: err.Error()}
	return c.JSON(statusFor(out), out)
}
