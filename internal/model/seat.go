package model

import "time"

// SeatState is the availability state of a single seat on a trip.  A seat
// is in exactly one state at any instant.  The only legal transitions are
// FREE -> HELD (acquire), HELD -> FREE (release or expiry), HELD -> SOLD
// (settlement) and the audited administrative override SOLD -> FREE
// (booking cancellation).  A seat never moves FREE -> SOLD except through
// the settlement-after-expiry reclaim performed by payment reconciliation.
type SeatState string

const (
	SeatFree SeatState = "FREE"
	SeatHeld SeatState = "HELD"
	SeatSold SeatState = "SOLD"
)

// Seat is one seat on a trip.  Position is unique within the trip,
// 1..seat_count, dense and gapless; the set is fixed at trip creation.
// HolderSession is populated only while the seat is HELD and names the
// checkout session that owns the hold.  BookingID is populated only while
// the seat is SOLD.
type Seat struct {
	ID            uint64     // seats.id
	TripID        uint64     // seats.trip_id
	Position      uint32     // seats.position (1-based)
	State         SeatState  // seats.state
	HolderSession *string    // seats.holder_session (nullable, HELD only)
	BookingID     *uint64    // seats.booking_id (nullable, SOLD only)
	UpdatedAt     time.Time  // seats.updated_at
}
