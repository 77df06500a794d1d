// Package calendar renders a performance's show times as an iCalendar feed.
//
// Two shapes are supported.  Expanded emits one VEVENT per materialized slot
// and mirrors exactly what the sync writes.  Recurring emits one VEVENT per
// distinct show time carrying a weekly RRULE bounded by the run's end date,
// which keeps the feed small for long runs.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/schedule"
	"github.com/iliyamo/showtime-sync/internal/weekday"
)

const (
	productID       = "-//showtime-sync//schedules//EN"
	uidDomain       = "showtime-sync"
	defaultDuration = 150 * time.Minute
)

// Options controls how wall-clock show times are placed on the timeline.
type Options struct {
	// Location is the venue time zone.  Nil means UTC.
	Location *time.Location
	// Duration is the length of each show.  Zero means two and a half hours.
	Duration time.Duration
	// Stamp is written as DTSTAMP.  Zero means now.
	Stamp time.Time
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Duration <= 0 {
		o.Duration = defaultDuration
	}
	if o.Stamp.IsZero() {
		o.Stamp = time.Now()
	}
	return o
}

func newCalendar(perf model.Performance) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if perf.Title != "" {
		cal.SetXWRCalName(perf.Title)
	}
	return cal
}

// Expanded builds a feed with one event per slot.  Slots whose date or
// time cannot be read are skipped.
func Expanded(perf model.Performance, slots []model.Schedule, opt Options) *ical.Calendar {
	opt = opt.withDefaults()
	cal := newCalendar(perf)
	for _, s := range slots {
		start, err := time.ParseInLocation(schedule.DateLayout+"T15:04", s.DateTime, opt.Location)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(s.ScheduleID + "@" + uidDomain)
		ev.SetDtStampTime(opt.Stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(opt.Duration))
		ev.SetSummary(summary(perf))
		if perf.VenueID != "" {
			ev.SetLocation(perf.VenueID)
		}
		ev.SetDescription(fmt.Sprintf("%s %s | %d/%d seats | %s", s.DayOfWeek, s.Time, s.AvailableSeats, s.TotalSeats, s.Status))
	}
	return cal
}

// Recurring builds a feed with one weekly recurring event per show time.
// The occurrences of all events together are exactly the slots the rule
// materializes over iv.
func Recurring(perf model.Performance, r rule.Rule, iv schedule.DateInterval, opt Options) (*ical.Calendar, error) {
	opt = opt.withDefaults()
	cal := newCalendar(perf)
	if !iv.Valid() {
		return cal, nil
	}
	until := time.Date(iv.End.Year(), iv.End.Month(), iv.End.Day(), 23, 59, 59, 0, opt.Location)

	for _, g := range groupByTime(r) {
		first, ok := firstOccurrence(iv, g.days)
		if !ok {
			continue
		}
		clock, err := time.Parse("15:04", g.clock)
		if err != nil {
			return nil, fmt.Errorf("show time %q: %w", g.clock, err)
		}
		start := time.Date(first.Year(), first.Month(), first.Day(), clock.Hour(), clock.Minute(), 0, 0, opt.Location)

		// DTSTART is serialized in UTC, so BYDAY must name UTC weekdays.
		shift := dayShift(start)
		byDay := make([]rrule.Weekday, 0, len(g.days))
		for _, d := range g.days {
			byDay = append(byDay, d.Add(shift).RRule())
		}
		ro := rrule.ROption{Freq: rrule.WEEKLY, Byweekday: byDay, Until: until}

		uid := fmt.Sprintf("%s-%s-%s@%s", perf.Key(), iv.Start.Format(schedule.DateLayout), strings.ReplaceAll(g.clock, ":", ""), uidDomain)
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(opt.Stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(opt.Duration))
		ev.SetSummary(summary(perf))
		if perf.VenueID != "" {
			ev.SetLocation(perf.VenueID)
		}
		ev.SetProperty(ical.ComponentPropertyRrule, ro.RRuleString())
	}
	return cal, nil
}

// dayShift is how many calendar days t's UTC date is ahead of its local date.
func dayShift(t time.Time) int {
	ly, lm, ld := t.Date()
	uy, um, ud := t.UTC().Date()
	local := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	utc := time.Date(uy, um, ud, 0, 0, 0, 0, time.UTC)
	return int(utc.Sub(local).Hours() / 24)
}

func summary(perf model.Performance) string {
	if perf.Title != "" {
		return perf.Title
	}
	return perf.Key()
}

type timeGroup struct {
	clock string
	days  []weekday.Weekday
}

// groupByTime inverts a rule into show time -> weekdays, ordered by time.
func groupByTime(r rule.Rule) []timeGroup {
	byClock := map[string][]weekday.Weekday{}
	for _, wd := range r.Weekdays() {
		for _, clock := range r.Times(wd) {
			byClock[clock] = append(byClock[clock], wd)
		}
	}
	out := make([]timeGroup, 0, len(byClock))
	for clock, days := range byClock {
		out = append(out, timeGroup{clock: clock, days: days})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].clock < out[j].clock })
	return out
}

// firstOccurrence returns the earliest date in iv falling on one of days.
func firstOccurrence(iv schedule.DateInterval, days []weekday.Weekday) (time.Time, bool) {
	for i := 0; i < 7; i++ {
		d := iv.Start.AddDate(0, 0, i)
		if d.After(iv.End) {
			break
		}
		wd := weekday.Of(d)
		for _, want := range days {
			if wd == want {
				return d, true
			}
		}
	}
	return time.Time{}, false
}
