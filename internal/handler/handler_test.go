package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-sync/internal/capacity"
	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/repository"
	"github.com/iliyamo/showtime-sync/internal/syncer"
)

type fakePerformances struct {
	items   map[string]model.Performance
	listErr error
}

func (f *fakePerformances) List(context.Context) ([]model.Performance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Performance, 0, len(f.items))
	for _, id := range []string{"perf-1", "perf-2"} {
		if p, ok := f.items[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePerformances) GetByID(_ context.Context, id string) (*model.Performance, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrPerformanceNotFound
	}
	return &p, nil
}

// memSlots is a minimal schedule store.
type memSlots struct {
	mu    sync.Mutex
	slots map[string][]model.Schedule
}

func (m *memSlots) KeysByPerformance(_ context.Context, pid string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, s := range m.slots[pid] {
		keys = append(keys, s.ScheduleID)
	}
	return keys, nil
}

func (m *memSlots) DeleteByKeys(_ context.Context, keys []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		return 0, nil
	}
	pid := ""
	for id, slots := range m.slots {
		if len(slots) > 0 && slots[0].ScheduleID == keys[0] {
			pid = id
		}
	}
	n := len(m.slots[pid])
	delete(m.slots, pid)
	return int64(n), nil
}

func (m *memSlots) CreateBulk(_ context.Context, slots []model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		m.slots[s.PerformanceID] = append(m.slots[s.PerformanceID], s)
	}
	return nil
}

func (m *memSlots) UpdateSummary(context.Context, string, []model.DaySchedule) error { return nil }

func (m *memSlots) ListByPerformance(_ context.Context, pid string) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Schedule(nil), m.slots[pid]...), nil
}

func newHandler(t *testing.T) (*ScheduleHandler, *memSlots, *[]string) {
	t.Helper()
	store := &memSlots{slots: map[string][]model.Schedule{}}
	perfs := &fakePerformances{items: map[string]model.Performance{
		"perf-1": {
			PerformanceID: "perf-1",
			Title:         "The Phantom",
			Schedule:      "Fri 19:00 / Sat, Sun 14:00, 19:00",
			StartDate:     "2025-01-03",
			EndDate:       "2025-01-05",
		},
		"perf-2": {
			PerformanceID: "perf-2",
			Title:         "Broken",
			Schedule:      "Fri 19:00",
			StartDate:     "2025-02-01",
			EndDate:       "2025-01-01",
		},
	}}
	invalidated := &[]string{}
	h := &ScheduleHandler{
		Performances: perfs,
		Slots:        store,
		Syncer: syncer.New(syncer.Options{
			Schedules:      store,
			Summaries:      store,
			Capacity:       capacity.NewChain(1240),
			DefaultVenueID: "charlotte-theater",
			Now:            func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
		}),
		Log: zerolog.Nop(),
		Invalidate: func(_ context.Context, pid string) {
			*invalidated = append(*invalidated, pid)
		},
	}
	return h, store, invalidated
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func newEcho(h *ScheduleHandler) *echo.Echo {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/v1/rules/parse", ParseRule)
	e.GET("/v1/performances/:id/schedules/preview", h.Preview)
	e.GET("/v1/performances/:id/calendar.ics", h.Calendar)
	e.POST("/v1/performances/:id/sync", h.SyncOne)
	e.POST("/v1/sync", h.SyncAll)
	return e
}

func TestHealth(t *testing.T) {
	h, _, _ := newHandler(t)
	rec := serve(newEcho(h), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestParseRule(t *testing.T) {
	h, _, _ := newHandler(t)
	e := newEcho(h)

	rec := serve(e, http.MethodGet, "/v1/rules/parse?rule="+url.QueryEscape("화~목 19:30 / Xyz 14:00")+"&start=2025-01-06&end=2025-01-12")
	require.Equal(t, http.StatusOK, rec.Code)
	var out RuleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Tue 19:30 / Wed 19:30 / Thu 19:30", out.Canonical)
	require.Len(t, out.Days, 3)
	assert.Equal(t, RuleDay{Day: "Tue", Index: 2, Times: []string{"19:30"}}, out.Days[0])
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, 2, out.Diagnostics[0].Clause)
	assert.Equal(t, "Xyz", out.Diagnostics[0].Token)
	require.NotNil(t, out.Count)
	assert.Equal(t, 3, *out.Count)

	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodGet, "/v1/rules/parse").Code)
	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodGet, "/v1/rules/parse?rule=Fri+19:00&start=bad").Code)
}

func TestPreview(t *testing.T) {
	h, store, _ := newHandler(t)
	e := newEcho(h)

	rec := serve(e, http.MethodGet, "/v1/performances/perf-1/schedules/preview?slots=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var out PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 5, out.Count)
	assert.Equal(t, 1240, out.Capacity)
	assert.Equal(t, "charlotte-theater", out.VenueID)
	assert.Len(t, out.Schedules, 3)
	assert.Len(t, out.Slots, 5)
	assert.Empty(t, store.slots, "preview does not persist")

	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/v1/performances/nope/schedules/preview").Code)

	bad := serve(e, http.MethodGet, "/v1/performances/perf-2/schedules/preview")
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)
	assert.Contains(t, bad.Body.String(), string(syncer.FailureInvalidDateInterval))
}

func TestSyncOne(t *testing.T) {
	h, store, invalidated := newHandler(t)
	e := newEcho(h)

	dry := serve(e, http.MethodPost, "/v1/performances/perf-1/sync?dry_run=true")
	require.Equal(t, http.StatusOK, dry.Code)
	assert.Empty(t, store.slots)

	rec := serve(e, http.MethodPost, "/v1/performances/perf-1/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	var out syncer.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 5, out.Generated)
	assert.Len(t, store.slots["perf-1"], 5)
	assert.Equal(t, []string{"perf-1"}, *invalidated)

	again := serve(e, http.MethodPost, "/v1/performances/perf-1/sync")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Len(t, store.slots["perf-1"], 5)

	assert.Equal(t, http.StatusUnprocessableEntity, serve(e, http.MethodPost, "/v1/performances/perf-2/sync").Code)
}

func TestSyncAll(t *testing.T) {
	h, store, invalidated := newHandler(t)
	e := newEcho(h)

	rec := serve(e, http.MethodPost, "/v1/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep syncer.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, 5, rep.Outcomes[0].Generated)
	assert.Equal(t, syncer.FailureInvalidDateInterval, rep.Outcomes[1].Kind)
	assert.Len(t, store.slots["perf-1"], 5)
	assert.Equal(t, []string{"perf-1"}, *invalidated)

	h.Performances.(*fakePerformances).listErr = errors.New("gone")
	assert.Equal(t, http.StatusInternalServerError, serve(e, http.MethodPost, "/v1/sync").Code)
}

func TestCalendar(t *testing.T) {
	h, _, _ := newHandler(t)
	e := newEcho(h)

	empty := serve(e, http.MethodGet, "/v1/performances/perf-1/calendar.ics")
	require.Equal(t, http.StatusOK, empty.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", empty.Header().Get(echo.HeaderContentType))
	assert.NotContains(t, empty.Body.String(), "BEGIN:VEVENT")

	serve(e, http.MethodPost, "/v1/performances/perf-1/sync")
	full := serve(e, http.MethodGet, "/v1/performances/perf-1/calendar.ics")
	assert.Equal(t, 5, strings.Count(full.Body.String(), "BEGIN:VEVENT"))

	rec := serve(e, http.MethodGet, "/v1/performances/perf-1/calendar.ics?mode=recurring")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
	assert.Contains(t, rec.Body.String(), "RRULE:FREQ=WEEKLY")

	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodGet, "/v1/performances/perf-1/calendar.ics?mode=daily").Code)
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/v1/performances/nope/calendar.ics").Code)
}
