package model

import (
	"encoding/json"
	"strings"
)

// Performance is a staged production with a run of dates and a recurrence
// rule describing its weekly show times.  It corresponds to a row in the
// `performances` table.
//
// Fields:
//
//	PerformanceID – primary identifier.
//	LegacyID      – older rows only carry `id`; used when PerformanceID is empty.
//	Title         – display title, used for logging.
//	VenueID       – venue hosting the run; empty means the configured default.
//	Schedule      – raw recurrence rule, e.g. "Tue, Thu 19:30 / Sat 14:00".
//	StartDate     – first day of the run, YYYY-MM-DD.
//	EndDate       – last day of the run (inclusive), YYYY-MM-DD.
//	Cast          – opaque casting payload copied onto every generated slot.
//	Schedules     – denormalized per-day summary of generated slots.
type Performance struct {
	PerformanceID string          `json:"performanceId"`
	LegacyID      string          `json:"id,omitempty"`
	Title         string          `json:"title"`
	VenueID       string          `json:"venueId,omitempty"`
	Schedule      string          `json:"schedule,omitempty"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Cast          json.RawMessage `json:"cast,omitempty"`
	Schedules     []DaySchedule   `json:"schedules,omitempty"`
}

// Key returns the identifier used for generated schedules, falling back to
// the legacy id alias.
func (p Performance) Key() string {
	if id := strings.TrimSpace(p.PerformanceID); id != "" {
		return id
	}
	return strings.TrimSpace(p.LegacyID)
}

// Venue resolves the venue identifier, substituting fallback when unset.
func (p Performance) Venue(fallback string) string {
	if v := strings.TrimSpace(p.VenueID); v != "" {
		return v
	}
	return fallback
}
