package queue

// Queue names.  Both are durable, default-exchange queues.
const (
	ScheduleSyncedQueue     = "schedule.synced"
	PerformanceChangedQueue = "performance.changed"
)

// ScheduleSyncedEvent is published after a performance's schedules were
// regenerated.  It carries enough information for downstream consumers
// (booking cache warmers, notification jobs) to react without querying the
// primary database.
type ScheduleSyncedEvent struct {
	EventID       string `json:"event_id"`
	RunID         string `json:"run_id"`
	PerformanceID string `json:"performance_id"`
	Title         string `json:"title"`
	VenueID       string `json:"venue_id"`
	TotalSeats    int    `json:"total_seats"`
	Generated     int    `json:"generated"`
	Deleted       int    `json:"deleted"`
	Days          int    `json:"days"`
	FirstDate     string `json:"first_date,omitempty"`
	LastDate      string `json:"last_date,omitempty"`
	SyncedAt      string `json:"synced_at"`
}

// PerformanceChangedEvent is consumed from the performance.changed queue.
// Any change to a performance's rule, dates, venue or cast should be
// followed by one of these so its schedules are regenerated.
type PerformanceChangedEvent struct {
	PerformanceID string `json:"performance_id"`
	Reason        string `json:"reason,omitempty"`
}
