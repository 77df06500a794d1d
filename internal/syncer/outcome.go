package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// FailureKind classifies why a performance could not be synced.
type FailureKind string

const (
	FailureInvalidPerformance  FailureKind = "invalid_performance"
	FailureInvalidDateInterval FailureKind = "invalid_date_interval"
	FailureMalformedRule       FailureKind = "malformed_rule"
	FailureCapacityLookup      FailureKind = "capacity_lookup"
	FailureDelete              FailureKind = "persistence_delete"
	FailureWrite               FailureKind = "persistence_write"
	FailureReplace             FailureKind = "persistence_replace"
	FailureSummary             FailureKind = "summary_update"
	FailureCancelled           FailureKind = "cancelled"
)

// Failure is the error recorded for a performance that did not sync.
type Failure struct {
	Kind FailureKind
	Err  error
}

func fail(kind FailureKind, err error) *Failure { return &Failure{Kind: kind, Err: err} }

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Kind, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind carried by err, or "" when err is not a
// *Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Outcome is the per-performance result of a sync pass.
type Outcome struct {
	PerformanceID string      `json:"performanceId"`
	Title         string      `json:"title,omitempty"`
	VenueID       string      `json:"venueId,omitempty"`
	Capacity      int         `json:"capacity,omitempty"`
	Deleted       int         `json:"deleted"`
	Generated     int         `json:"generated"`
	Days          int         `json:"days"`
	Warnings      []string    `json:"warnings,omitempty"`
	Kind          FailureKind `json:"failure,omitempty"`
	Err           error       `json:"-"`
	Error         string      `json:"error,omitempty"`
}

// OK reports whether the performance synced.
func (o Outcome) OK() bool { return o.Err == nil }

func (o Outcome) failed(log zerolog.Logger, err error) Outcome {
	o.Err = err
	o.Error = err.Error()
	o.Kind = KindOf(err)
	log.Error().Err(err).Str("failure", string(o.Kind)).Msg("schedule sync failed")
	return o
}

// Report summarizes a SyncAll run.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DryRun     bool      `json:"dryRun,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Generated is the total number of slots written across the run.
func (r Report) Generated() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Generated
	}
	return n
}

// Failed returns the outcomes that carry a failure.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
