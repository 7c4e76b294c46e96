package model

import "time"

// SessionState is the lifecycle state of a checkout session.  Transitions
// only ever move forward: SELECTING -> PENDING_IDENTITY -> PENDING_PAYMENT
// -> SETTLED, with PENDING_IDENTITY skipped for callers that already carry
// a verified identity grant, and ABANDONED reachable from any non-terminal
// state via hold expiry, explicit cancellation or payment failure.  Only
// PENDING_PAYMENT may retry itself (re-request a payment intent) without
// losing the hold.
type SessionState string

const (
	SessionSelecting       SessionState = "SELECTING"
	SessionPendingIdentity SessionState = "PENDING_IDENTITY"
	SessionPendingPayment  SessionState = "PENDING_PAYMENT"
	SessionSettled         SessionState = "SETTLED"
	SessionAbandoned       SessionState = "ABANDONED"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionSettled || s == SessionAbandoned
}

// CheckoutSession binds a candidate passenger (or an anonymous identity
// pending verification), a held seat set and a computed price for the
// duration of one checkout.  SeatIDs and SeatPositions are recorded when
// the hold is acquired so that payment reconciliation can still identify
// the seats after the hold itself has been swept.
type CheckoutSession struct {
	ID            string       // checkout_sessions.id (UUID)
	TripID        uint64       // checkout_sessions.trip_id
	State         SessionState // checkout_sessions.state
	HoldID        *string      // checkout_sessions.hold_id (nullable until held)
	IdentityID    *uint64      // checkout_sessions.identity_id (nullable until verified)
	HireMode      bool         // checkout_sessions.hire_mode (full-bus hire)
	SeatPositions []uint32     // requested seat positions (session_seats)
	SeatIDs       []uint64     // resolved seat ids, set when the hold succeeds
	TotalKobo     int64        // checkout_sessions.total_kobo (computed at payment request)
	PaymentRef    *string      // checkout_sessions.payment_ref (nullable)
	CreatedAt     time.Time    // checkout_sessions.created_at
	UpdatedAt     time.Time    // checkout_sessions.updated_at
}
