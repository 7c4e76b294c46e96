package model

import "time"

// BookingStatus tracks the post-settlement lifecycle of a booking.  A
// booking is immutable after creation except for the administrative
// cancellation that also performs the audited SOLD -> FREE seat override.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is the permanent record created at settlement.  It references
// the trip, the now-SOLD seats, the verified passenger identity, the price
// paid and the payment provider reference.
type Booking struct {
	ID          uint64        // bookings.id
	TripID      uint64        // bookings.trip_id
	IdentityID  uint64        // bookings.passenger_id
	SeatIDs     []uint64      // booking_seats.seat_id
	AmountKobo  int64         // bookings.amount_kobo (price paid)
	PaymentRef  string        // bookings.payment_ref (unique)
	Status      BookingStatus // bookings.status
	CancelledBy *string       // bookings.cancelled_by (nullable, audit)
	CreatedAt   time.Time     // bookings.created_at
	UpdatedAt   time.Time     // bookings.updated_at
}
