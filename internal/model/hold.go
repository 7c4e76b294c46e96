package model

import "time"

// Hold is a temporary exclusive claim on a set of seats for one checkout
// session.  It is created atomically across its whole seat set (all seats
// FREE or nothing moves), extended only by the owning session, and expires
// automatically at ExpiresAt, returning every referenced seat to FREE.
// All seats in a hold belong to the same trip.
type Hold struct {
	ID        string    // holds.id (UUID)
	SessionID string    // holds.session_id (owning checkout session)
	TripID    uint64    // holds.trip_id
	SeatIDs   []uint64  // hold_seats.seat_id, position order
	ExpiresAt time.Time // holds.expires_at (UTC)
	CreatedAt time.Time // holds.created_at (UTC)
}

// Active reports whether the hold has not yet expired at the given instant.
func (h *Hold) Active(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}
