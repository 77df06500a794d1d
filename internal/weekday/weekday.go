// Package weekday defines the canonical weekday enumeration used across the
// scheduler.  Index 0 is Sunday and index 6 is Saturday.  Calendar libraries
// that number weekdays differently (rrule-go and ISO 8601 both start the week
// on Monday) must go through the adapter functions in this package instead of
// doing index arithmetic at the call site.
package weekday

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Weekday is a canonical weekday index in the range [0, 6] with Sunday = 0.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// ErrInvalidWeekdaySymbol is returned when a symbol or index does not name
// one of the seven canonical weekdays.
var ErrInvalidWeekdaySymbol = errors.New("invalid weekday symbol")

// symbols holds the canonical symbol for each weekday, in canonical order.
var symbols = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// aliases maps every accepted spelling (lower-cased) to its weekday.  The
// Korean single-character forms are what the production rule strings use.
var aliases = map[string]Weekday{
	"sun": Sunday, "sunday": Sunday, "일": Sunday,
	"mon": Monday, "monday": Monday, "월": Monday,
	"tue": Tuesday, "tuesday": Tuesday, "화": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday, "수": Wednesday,
	"thu": Thursday, "thursday": Thursday, "목": Thursday,
	"fri": Friday, "friday": Friday, "금": Friday,
	"sat": Saturday, "saturday": Saturday, "토": Saturday,
}

// All returns the seven weekdays in canonical order.
func All() []Weekday {
	return []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

// Parse maps a weekday symbol to its canonical weekday.  Matching ignores
// case and surrounding whitespace.
func Parse(symbol string) (Weekday, error) {
	if wd, ok := aliases[strings.ToLower(strings.TrimSpace(symbol))]; ok {
		return wd, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekdaySymbol, symbol)
}

// FromIndex converts a canonical index (Sunday = 0) to a Weekday.
func FromIndex(i int) (Weekday, error) {
	if i < 0 || i > 6 {
		return 0, fmt.Errorf("%w: index %d", ErrInvalidWeekdaySymbol, i)
	}
	return Weekday(i), nil
}

// Valid reports whether w is one of the seven canonical weekdays.
func (w Weekday) Valid() bool { return w >= Sunday && w <= Saturday }

// Index returns the canonical index of w.
func (w Weekday) Index() int { return int(w) }

// Symbol returns the canonical three-letter symbol of w, e.g. "Tue".
func (w Weekday) Symbol() string {
	if !w.Valid() {
		return ""
	}
	return symbols[w]
}

func (w Weekday) String() string { return w.Symbol() }

// Add returns the weekday n days after w.  Negative n moves backwards.
func (w Weekday) Add(n int) Weekday {
	return Weekday(((int(w)+n)%7 + 7) % 7)
}

// FromMondayIndex converts a Monday-first index (Monday = 0 … Sunday = 6),
// the convention of rrule-go and ISO weekday numbering minus one, into the
// canonical space.  Out-of-range input is reduced modulo 7.
func FromMondayIndex(n int) Weekday {
	return Weekday(((n%7)+7+1) % 7)
}

// MondayIndex is the inverse of FromMondayIndex.
func (w Weekday) MondayIndex() int {
	return (int(w) + 6) % 7
}

// Of returns the weekday of the calendar date of t, in t's own location.
// Go's time.Weekday already counts from Sunday, so no shift is needed here.
func Of(t time.Time) Weekday {
	return Weekday(t.Weekday())
}

// rruleDays is indexed by Monday-first index, matching rrule.Weekday.Day().
var rruleDays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// RRule returns the rrule-go weekday for w.
func (w Weekday) RRule() rrule.Weekday {
	return rruleDays[w.MondayIndex()]
}

// FromRRule converts an rrule-go weekday into the canonical space.
func FromRRule(d rrule.Weekday) Weekday {
	return FromMondayIndex(d.Day())
}
