// Package schedule expands a compiled recurrence rule over a date interval
// into concrete, bookable slots.
package schedule

import (
	"encoding/json"
	"iter"
	"slices"
	"time"

	"github.com/iliyamo/showtime-sync/internal/model"
	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/weekday"
)

// Params carries the per-performance values stamped onto every slot.
type Params struct {
	PerformanceID string
	TotalSeats    int
	Casting       json.RawMessage
	CreatedAt     time.Time
}

// Generate walks every date of iv in ascending order and yields one slot per
// time configured for that date's weekday, in rule order.  The sequence is
// deterministic and may be ranged over any number of times.  An invalid
// interval yields nothing.
func Generate(r rule.Rule, iv DateInterval, p Params) iter.Seq[model.Schedule] {
	return func(yield func(model.Schedule) bool) {
		for d := iv.Start; !d.After(iv.End); d = d.AddDate(0, 0, 1) {
			wd := weekday.Of(d)
			date := d.Format(DateLayout)
			for _, clock := range r.Times(wd) {
				if !yield(newSlot(p, date, clock, wd)) {
					return
				}
			}
		}
	}
}

// Materialize collects Generate into a slice.
func Materialize(r rule.Rule, iv DateInterval, p Params) []model.Schedule {
	return slices.Collect(Generate(r, iv, p))
}

func newSlot(p Params, date, clock string, wd weekday.Weekday) model.Schedule {
	return model.Schedule{
		ScheduleID:     model.ScheduleID(p.PerformanceID, date, clock),
		PerformanceID:  p.PerformanceID,
		Date:           date,
		Time:           clock,
		DateTime:       date + "T" + clock,
		DayOfWeek:      wd.Symbol(),
		AvailableSeats: p.TotalSeats,
		TotalSeats:     p.TotalSeats,
		Status:         model.StatusAvailable,
		Casting:        slices.Clone(p.Casting),
		CreatedAt:      p.CreatedAt,
	}
}

// Count returns how many slots Generate would yield, computed per weekday
// without walking the interval.
func Count(r rule.Rule, iv DateInterval) int {
	days := iv.Days()
	if days == 0 {
		return 0
	}
	first := weekday.Of(iv.Start)
	total := 0
	for _, wd := range r.Weekdays() {
		offset := (wd.Index() - first.Index() + 7) % 7
		if offset >= days {
			continue
		}
		total += ((days-1-offset)/7 + 1) * len(r.Times(wd))
	}
	return total
}

// Summarize projects slots into the per-day summary stored on the parent
// performance.  Days appear in the order of their first slot.
func Summarize(slots []model.Schedule) []model.DaySchedule {
	out := []model.DaySchedule{}
	index := map[string]int{}
	for _, s := range slots {
		i, ok := index[s.Date]
		if !ok {
			i = len(out)
			index[s.Date] = i
			out = append(out, model.DaySchedule{Date: s.Date, DayOfWeek: s.DayOfWeek})
		}
		out[i].Times = append(out[i].Times, model.TimeSlot{
			Time:           s.Time,
			AvailableSeats: s.AvailableSeats,
			TotalSeats:     s.TotalSeats,
			Status:         s.Status,
		})
	}
	return out
}
