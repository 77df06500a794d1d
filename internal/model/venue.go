package model

// Venue is a theatre hosting performances.  Only the capacity matters to
// schedule generation.  It corresponds to a row in the `venues` table.
//
// Fields:
//
//	VenueID    – primary identifier, e.g. "charlotte-theater".
//	Name       – display name.
//	TotalSeats – seat count used as the initial availability of every slot.
type Venue struct {
	VenueID    string `json:"venueId"`
	Name       string `json:"name"`
	TotalSeats int    `json:"totalSeats"`
}
