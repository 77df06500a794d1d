// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// sync orchestrator and handlers to distinguish between different failure
// scenarios.
package repository

import (
	"errors"
	"fmt"

	"github.com/iliyamo/showtime-sync/internal/capacity"
)

// ErrPerformanceNotFound indicates that a performance was not located in
// the DB. Handlers should translate this into an HTTP 404 response.
var ErrPerformanceNotFound = errors.New("performance not found")

// ErrVenueNotFound is returned when a venue lookup yields no row. It wraps
// capacity.ErrUnknownVenue so capacity chains treat it as a miss and fall
// back to the default capacity.
var ErrVenueNotFound = fmt.Errorf("venue not found: %w", capacity.ErrUnknownVenue)
