package model

import (
	"encoding/json"
	"time"
)

// Schedule statuses.  Generated slots always start as AVAILABLE; the
// booking service moves them along afterwards.
const (
	StatusAvailable = "AVAILABLE"
	StatusSoldOut   = "SOLD_OUT"
	StatusClosed    = "CLOSED"
)

// Schedule is one bookable (date, time) slot of a performance.  Its
// identity is fully determined by (PerformanceID, Date, Time), see
// ScheduleID.  It corresponds to a row in the `schedules` table.
//
// Fields:
//
//	ScheduleID     – "{performanceId}-{date}-{time}".
//	PerformanceID  – owning performance.
//	Date           – calendar date, YYYY-MM-DD.
//	Time           – time of day, HH:MM.
//	DateTime       – "{date}T{time}", kept for range queries.
//	DayOfWeek      – canonical weekday symbol (Sun…Sat).
//	AvailableSeats – seats still bookable; equals TotalSeats at generation.
//	TotalSeats     – venue capacity at generation time.
//	Status         – AVAILABLE, SOLD_OUT or CLOSED.
//	Casting        – snapshot of the performance cast at generation time.
//	CreatedAt      – generation timestamp (UTC).
type Schedule struct {
	ScheduleID     string          `json:"scheduleId"`
	PerformanceID  string          `json:"performanceId"`
	Date           string          `json:"date"`
	Time           string          `json:"time"`
	DateTime       string          `json:"datetime"`
	DayOfWeek      string          `json:"dayOfWeek"`
	AvailableSeats int             `json:"availableSeats"`
	TotalSeats     int             `json:"totalSeats"`
	Status         string          `json:"status"`
	Casting        json.RawMessage `json:"casting,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ScheduleID derives the single-field key of a slot.
func ScheduleID(performanceID, date, clock string) string {
	return performanceID + "-" + date + "-" + clock
}

// DaySchedule is the denormalized per-day projection stored on the parent
// performance for read-optimized display.
type DaySchedule struct {
	Date      string     `json:"date"`
	DayOfWeek string     `json:"dayOfWeek"`
	Times     []TimeSlot `json:"times"`
}

// TimeSlot is one entry of DaySchedule.Times.
type TimeSlot struct {
	Time           string `json:"time"`
	AvailableSeats int    `json:"availableSeats"`
	TotalSeats     int    `json:"totalSeats"`
	Status         string `json:"status"`
}
