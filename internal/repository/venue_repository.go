package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/showtime-sync/internal/model"
)

// VenueRepo provides read access to venues.  It satisfies
// capacity.Resolver through Capacity.
type VenueRepo struct {
	db *sql.DB
}

// NewVenueRepo returns a new VenueRepo bound to the provided database.
func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{db: db} }

// GetByID retrieves a venue or ErrVenueNotFound.
func (r *VenueRepo) GetByID(ctx context.Context, id string) (*model.Venue, error) {
	var v model.Venue
	err := r.db.QueryRowContext(ctx, `SELECT venue_id, name, total_seats FROM venues WHERE venue_id = ?`, id).
		Scan(&v.VenueID, &v.Name, &v.TotalSeats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Capacity returns the venue's total seats.  Unknown venues and venues
// with a non-positive seat count report ErrVenueNotFound, which matches
// capacity.ErrUnknownVenue.
func (r *VenueRepo) Capacity(ctx context.Context, venueID string) (int, error) {
	v, err := r.GetByID(ctx, venueID)
	if err != nil {
		return 0, err
	}
	if v.TotalSeats <= 0 {
		return 0, ErrVenueNotFound
	}
	return v.TotalSeats, nil
}
