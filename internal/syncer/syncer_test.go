package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-sync/internal/capacity"
	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/queue"
	"github.com/iliyamo/showtime-sync/internal/schedule"
)

var fixedNow = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// memStore keeps slots and summaries in memory and records every call.
type memStore struct {
	mu        sync.Mutex
	slots     map[string]model.Schedule
	summaries map[string][]model.DaySchedule
	calls     []string

	failKeys    error
	failDelete  error
	failCreate  map[string]error // by performance id
	failSummary error
}

func newMemStore() *memStore {
	return &memStore{
		slots:      map[string]model.Schedule{},
		summaries:  map[string][]model.DaySchedule{},
		failCreate: map[string]error{},
	}
}

func (m *memStore) KeysByPerformance(_ context.Context, pid string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "keys:"+pid)
	if m.failKeys != nil {
		return nil, m.failKeys
	}
	var keys []string
	for k, s := range m.slots {
		if s.PerformanceID == pid {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) DeleteByKeys(_ context.Context, keys []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("delete:%d", len(keys)))
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.slots[k]; ok {
			delete(m.slots, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateBulk(_ context.Context, slots []model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("create:%d", len(slots)))
	for _, s := range slots {
		if err := m.failCreate[s.PerformanceID]; err != nil {
			return err
		}
	}
	for _, s := range slots {
		m.slots[s.ScheduleID] = s
	}
	return nil
}

func (m *memStore) UpdateSummary(_ context.Context, pid string, summary []model.DaySchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "summary:"+pid)
	if m.failSummary != nil {
		return m.failSummary
	}
	m.summaries[pid] = summary
	return nil
}

func (m *memStore) stored(pid string) []model.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Schedule
	for _, s := range m.slots {
		if s.PerformanceID == pid {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime < out[j].DateTime })
	return out
}

// txStore adds atomic replacement on top of memStore.
type txStore struct {
	*memStore
	failReplace error
}

func (t *txStore) ReplaceForPerformance(ctx context.Context, pid string, slots []model.Schedule, summary []model.DaySchedule) (int64, error) {
	t.mu.Lock()
	t.calls = append(t.calls, "replace:"+pid)
	t.mu.Unlock()
	if t.failReplace != nil {
		return 0, t.failReplace
	}
	keys, _ := t.KeysByPerformance(ctx, pid)
	n, _ := t.DeleteByKeys(ctx, keys)
	_ = t.CreateBulk(ctx, slots)
	_ = t.UpdateSummary(ctx, pid, summary)
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ScheduleSyncedEvent
	err    error
}

func (p *recordingPublisher) PublishScheduleSynced(_ context.Context, ev queue.ScheduleSyncedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func newOrchestrator(store *memStore, opts ...func(*Options)) *Orchestrator {
	o := Options{
		Schedules:      store,
		Summaries:      store,
		Capacity:       capacity.NewChain(1240, capacity.Static{"small-hall": 300}),
		DefaultVenueID: "charlotte-theater",
		Now:            func() time.Time { return fixedNow },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func perf1() model.Performance {
	return model.Performance{
		PerformanceID: "perf-1",
		Title:         "The Phantom",
		Schedule:      "Fri 19:00 / Sat, Sun 14:00, 19:00",
		StartDate:     "2025-01-03",
		EndDate:       "2025-01-05",
		Cast:          json.RawMessage(`[{"role":"Phantom","actor":"Kim"}]`),
	}
}

func TestSyncPerformance_EndToEnd(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	out := o.SyncPerformance(context.Background(), perf1())
	require.True(t, out.OK(), out.Error)
	assert.Equal(t, 5, out.Generated)
	assert.Equal(t, 3, out.Days)
	assert.Equal(t, "charlotte-theater", out.VenueID)
	assert.Equal(t, 1240, out.Capacity)

	got := store.stored("perf-1")
	var keys []string
	for _, s := range got {
		keys = append(keys, s.ScheduleID)
		assert.Equal(t, 1240, s.TotalSeats)
		assert.Equal(t, 1240, s.AvailableSeats)
		assert.Equal(t, model.StatusAvailable, s.Status)
		assert.Equal(t, fixedNow, s.CreatedAt)
		assert.JSONEq(t, `[{"role":"Phantom","actor":"Kim"}]`, string(s.Casting))
	}
	assert.Equal(t, []string{
		"perf-1-2025-01-03-19:00",
		"perf-1-2025-01-04-14:00",
		"perf-1-2025-01-04-19:00",
		"perf-1-2025-01-05-14:00",
		"perf-1-2025-01-05-19:00",
	}, keys)
}

func TestSyncPerformance_SummaryMatchesStoredSlots(t *testing.T) {
	store := newMemStore()
	out := newOrchestrator(store).SyncPerformance(context.Background(), perf1())
	require.True(t, out.OK())
	assert.Equal(t, schedule.Summarize(store.stored("perf-1")), store.summaries["perf-1"])
}

func TestSyncPerformance_Idempotent(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	first := o.SyncPerformance(context.Background(), perf1())
	require.True(t, first.OK())
	before := store.stored("perf-1")

	second := o.SyncPerformance(context.Background(), perf1())
	require.True(t, second.OK())
	assert.Equal(t, 5, second.Deleted)
	assert.Equal(t, before, store.stored("perf-1"))
}

func TestSyncPerformance_RuleChangeRemovesStaleSlots(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	require.True(t, o.SyncPerformance(context.Background(), perf1()).OK())

	p := perf1()
	p.Schedule = "Sat 19:00"
	out := o.SyncPerformance(context.Background(), p)
	require.True(t, out.OK())
	assert.Equal(t, 5, out.Deleted)

	got := store.stored("perf-1")
	require.Len(t, got, 1)
	assert.Equal(t, "perf-1-2025-01-04-19:00", got[0].ScheduleID)
}

func TestSyncPerformance_DeleteBeforeWrite(t *testing.T) {
	store := newMemStore()
	out := newOrchestrator(store).SyncPerformance(context.Background(), perf1())
	require.True(t, out.OK())
	assert.Equal(t, []string{"keys:perf-1", "delete:0", "create:5", "summary:perf-1"}, store.calls)
}

func TestSyncPerformance_UsesReplacer(t *testing.T) {
	store := &txStore{memStore: newMemStore()}
	o := New(Options{
		Schedules: store,
		Summaries: store,
		Capacity:  capacity.NewChain(1240),
	})
	out := o.SyncPerformance(context.Background(), perf1())
	require.True(t, out.OK())
	assert.Equal(t, "replace:perf-1", store.calls[0])
	assert.Len(t, store.stored("perf-1"), 5)

	store.failReplace = errors.New("lock wait timeout")
	out = o.SyncPerformance(context.Background(), perf1())
	assert.Equal(t, FailureReplace, out.Kind)
	assert.Len(t, store.stored("perf-1"), 5)
}

func TestSyncPerformance_VenueCapacity(t *testing.T) {
	store := newMemStore()
	p := perf1()
	p.VenueID = "small-hall"

	out := newOrchestrator(store).SyncPerformance(context.Background(), p)
	require.True(t, out.OK())
	assert.Equal(t, 300, out.Capacity)
	for _, s := range store.stored("perf-1") {
		assert.Equal(t, 300, s.TotalSeats)
		assert.Equal(t, 300, s.AvailableSeats)
	}
}

func TestSyncPerformance_LegacyID(t *testing.T) {
	store := newMemStore()
	p := perf1()
	p.PerformanceID = ""
	p.LegacyID = "legacy-9"

	out := newOrchestrator(store).SyncPerformance(context.Background(), p)
	require.True(t, out.OK())
	assert.Equal(t, "legacy-9", out.PerformanceID)
	assert.Len(t, store.stored("legacy-9"), 5)
}

func TestSyncPerformance_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Performance)
		setup  func(*memStore, *Options)
		want   FailureKind
	}{
		{
			name:   "missing id",
			mutate: func(p *model.Performance) { p.PerformanceID = "" },
			want:   FailureInvalidPerformance,
		},
		{
			name:   "unparseable date",
			mutate: func(p *model.Performance) { p.StartDate = "03/01/2025" },
			want:   FailureInvalidDateInterval,
		},
		{
			name:   "start after end",
			mutate: func(p *model.Performance) { p.StartDate, p.EndDate = "2025-01-05", "2025-01-03" },
			want:   FailureInvalidDateInterval,
		},
		{
			name:   "strict rule",
			mutate: func(p *model.Performance) { p.Schedule = "Fri 19:00 / Xyz 14:00" },
			setup:  func(_ *memStore, o *Options) { o.Strict = true },
			want:   FailureMalformedRule,
		},
		{
			name: "capacity lookup",
			setup: func(_ *memStore, o *Options) {
				o.Capacity = capacity.ResolverFunc(func(context.Context, string) (int, error) {
					return 0, errors.New("venues table unavailable")
				})
			},
			want: FailureCapacityLookup,
		},
		{
			name:  "delete",
			setup: func(m *memStore, _ *Options) { m.failDelete = errors.New("throttled") },
			want:  FailureDelete,
		},
		{
			name:  "key lookup",
			setup: func(m *memStore, _ *Options) { m.failKeys = errors.New("throttled") },
			want:  FailureDelete,
		},
		{
			name:  "write",
			setup: func(m *memStore, _ *Options) { m.failCreate["perf-1"] = errors.New("disk full") },
			want:  FailureWrite,
		},
		{
			name:  "summary",
			setup: func(m *memStore, _ *Options) { m.failSummary = errors.New("row gone") },
			want:  FailureSummary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			p := perf1()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			o := newOrchestrator(store, func(o *Options) {
				if tt.setup != nil {
					tt.setup(store, o)
				}
			})
			out := o.SyncPerformance(context.Background(), p)
			assert.False(t, out.OK())
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, tt.want, KindOf(out.Err))
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestSyncPerformance_InvalidIntervalLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	require.True(t, o.SyncPerformance(context.Background(), perf1()).OK())
	store.calls = nil

	p := perf1()
	p.StartDate, p.EndDate = "2025-02-01", "2025-01-01"
	out := o.SyncPerformance(context.Background(), p)
	assert.Equal(t, FailureInvalidDateInterval, out.Kind)
	assert.Empty(t, store.calls)
	assert.Len(t, store.stored("perf-1"), 5)
}

func TestSyncPerformance_NoWriteAfterFailedDelete(t *testing.T) {
	store := newMemStore()
	store.failDelete = errors.New("throttled")
	out := newOrchestrator(store).SyncPerformance(context.Background(), perf1())
	assert.Equal(t, FailureDelete, out.Kind)
	for _, c := range store.calls {
		assert.False(t, strings.HasPrefix(c, "create:"), c)
		assert.False(t, strings.HasPrefix(c, "summary:"), c)
	}
}

func TestSyncPerformance_EmptyRuleClearsSlots(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	require.True(t, o.SyncPerformance(context.Background(), perf1()).OK())

	p := perf1()
	p.Schedule = ""
	out := o.SyncPerformance(context.Background(), p)
	require.True(t, out.OK())
	assert.Equal(t, 0, out.Generated)
	assert.Empty(t, store.stored("perf-1"))
	assert.Equal(t, []model.DaySchedule{}, store.summaries["perf-1"])
}

func TestSyncPerformance_LenientRuleKeepsParsedClauses(t *testing.T) {
	store := newMemStore()
	p := perf1()
	p.Schedule = "Fri 19:00 / Xyz 14:00"
	out := newOrchestrator(store).SyncPerformance(context.Background(), p)
	require.True(t, out.OK())
	assert.Equal(t, 1, out.Generated)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "Xyz")
}

func TestSyncPerformance_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemStore()
	out := newOrchestrator(store).SyncPerformance(ctx, perf1())
	assert.Equal(t, FailureCancelled, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, store.calls)
}

func TestSyncPerformance_Publishes(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	o := newOrchestrator(store, func(o *Options) { o.Publisher = pub })

	require.True(t, o.SyncPerformance(context.Background(), perf1()).OK())
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "perf-1", ev.PerformanceID)
	assert.Equal(t, 5, ev.Generated)
	assert.Equal(t, 3, ev.Days)
	assert.Equal(t, "2025-01-03", ev.FirstDate)
	assert.Equal(t, "2025-01-05", ev.LastDate)
	assert.NotEmpty(t, ev.EventID)

	// A broken broker does not fail the sync.
	pub.err = errors.New("channel closed")
	assert.True(t, o.SyncPerformance(context.Background(), perf1()).OK())
}

// stallingPublisher blocks its first publish until release is closed.
type stallingPublisher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (p *stallingPublisher) PublishScheduleSynced(context.Context, queue.ScheduleSyncedEvent) error {
	if p.calls.Add(1) == 1 {
		close(p.started)
		<-p.release
	}
	return nil
}

func TestSyncPerformance_PublishDoesNotHoldLock(t *testing.T) {
	store := newMemStore()
	pub := &stallingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	o := newOrchestrator(store, func(o *Options) { o.Publisher = pub })

	first := make(chan Outcome, 1)
	go func() { first <- o.SyncPerformance(context.Background(), perf1()) }()
	<-pub.started

	second := make(chan Outcome, 1)
	go func() { second <- o.SyncPerformance(context.Background(), perf1()) }()
	select {
	case out := <-second:
		assert.True(t, out.OK())
	case <-time.After(time.Second):
		t.Fatal("second sync waited on the first sync's publish")
	}

	close(pub.release)
	assert.True(t, (<-first).OK())
}

func TestSyncAll_FailureIsolation(t *testing.T) {
	store := newMemStore()
	store.failCreate["perf-2"] = errors.New("disk full")
	pub := &recordingPublisher{}
	o := newOrchestrator(store, func(o *Options) {
		o.Concurrency = 3
		o.Publisher = pub
	})

	p2 := perf1()
	p2.PerformanceID = "perf-2"
	p3 := perf1()
	p3.PerformanceID = "perf-3"
	p3.Schedule = "Sun 15:00"
	bad := perf1()
	bad.PerformanceID = "perf-4"
	bad.StartDate = "not-a-date"

	rep := o.SyncAll(context.Background(), []model.Performance{perf1(), p2, p3, bad})
	require.Len(t, rep.Outcomes, 4)
	assert.NotEmpty(t, rep.RunID)

	assert.True(t, rep.Outcomes[0].OK())
	assert.Equal(t, FailureWrite, rep.Outcomes[1].Kind)
	assert.True(t, rep.Outcomes[2].OK())
	assert.Equal(t, FailureInvalidDateInterval, rep.Outcomes[3].Kind)

	assert.Len(t, rep.Failed(), 2)
	assert.Equal(t, 6, rep.Generated())
	assert.Len(t, store.stored("perf-1"), 5)
	assert.Len(t, store.stored("perf-3"), 1)

	require.Len(t, pub.events, 2)
	for _, ev := range pub.events {
		assert.Equal(t, rep.RunID, ev.RunID)
	}
}

func TestSyncAll_PerformanceIDPrefixesDoNotCollide(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	p10 := perf1()
	p10.PerformanceID = "perf-10"
	rep := o.SyncAll(context.Background(), []model.Performance{perf1(), p10})
	require.Empty(t, rep.Failed())

	out := o.SyncPerformance(context.Background(), perf1())
	require.True(t, out.OK())
	assert.Equal(t, 5, out.Deleted)
	assert.Len(t, store.stored("perf-10"), 5)
}

func TestPlan_DoesNotTouchStore(t *testing.T) {
	store := newMemStore()
	plan, err := newOrchestrator(store).Plan(context.Background(), perf1())
	require.NoError(t, err)
	assert.Len(t, plan.Slots, 5)
	assert.Len(t, plan.Summary, 3)
	assert.Equal(t, "Sun 14:00, 19:00 / Fri 19:00 / Sat 14:00, 19:00", plan.Rule.Rule.String())
	assert.Empty(t, store.calls)
}

func TestDryRun(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	o := newOrchestrator(store, func(o *Options) { o.Publisher = pub })

	bad := perf1()
	bad.PerformanceID = "perf-2"
	bad.EndDate = "2024-12-01"

	rep := o.DryRun(context.Background(), []model.Performance{perf1(), bad})
	assert.True(t, rep.DryRun)
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, 5, rep.Outcomes[0].Generated)
	assert.Equal(t, 3, rep.Outcomes[0].Days)
	assert.Equal(t, FailureInvalidDateInterval, rep.Outcomes[1].Kind)

	assert.Empty(t, store.calls)
	assert.Empty(t, pub.events)
}
