package schedule

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on performances and slots.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date string is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// DateInterval is the inclusive range [Start, End] of calendar dates.  Both
// ends are midnight UTC; only their calendar date is meaningful.
type DateInterval struct {
	Start time.Time
	End   time.Time
}

// ParseInterval parses two YYYY-MM-DD dates.  It does not check their order;
// use Valid for that.
func ParseInterval(start, end string) (DateInterval, error) {
	s, err := parseDate(start)
	if err != nil {
		return DateInterval{}, fmt.Errorf("start date: %w", err)
	}
	e, err := parseDate(end)
	if err != nil {
		return DateInterval{}, fmt.Errorf("end date: %w", err)
	}
	return DateInterval{Start: s, End: e}, nil
}

// NewInterval builds an interval from two instants, keeping only their
// calendar dates.
func NewInterval(start, end time.Time) DateInterval {
	return DateInterval{Start: truncate(start), End: truncate(end)}
}

// Valid reports whether Start is not after End.
func (iv DateInterval) Valid() bool { return !iv.Start.After(iv.End) }

// Days returns the number of calendar days in the interval, 0 when invalid.
func (iv DateInterval) Days() int {
	if !iv.Valid() {
		return 0
	}
	return int(iv.End.Sub(iv.Start).Hours()/24) + 1
}

func (iv DateInterval) String() string {
	return "[" + iv.Start.Format(DateLayout) + ", " + iv.End.Format(DateLayout) + "]"
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
