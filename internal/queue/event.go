// Package queue defines the message payloads exchanged over the broker
// and the background consumer that records them for the operator team.
package queue

import "time"

// Queue names.  Both queues are durable; publishers and the consumer
// declare them idempotently.
const (
	BookingConfirmedQueue        = "booking.confirmed"
	ReconciliationEscalatedQueue = "reconciliation.escalated"
)

// BookingConfirmedEvent is published after settlement turns a held seat
// set into a booking.  It carries enough for downstream consumers
// (ticket delivery, notifications, analytics) to act without querying
// the primary database.
type BookingConfirmedEvent struct {
	BookingID  uint64    `json:"booking_id"`
	TripID     uint64    `json:"trip_id"`
	IdentityID uint64    `json:"passenger_id"`
	SeatIDs    []uint64  `json:"seat_ids"`
	AmountKobo int64     `json:"amount_kobo"`
	PaymentRef string    `json:"payment_ref"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReconciliationEscalatedEvent is published when a payment callback
// cannot be honored automatically: the amount disagrees with the
// session total, or a late settlement found its seats taken.  The payer
// was (or may have been) charged, so these land in the operator queue
// for manual resolution and are never dropped silently.
type ReconciliationEscalatedEvent struct {
	SessionID    string    `json:"session_id"`
	TripID       uint64    `json:"trip_id"`
	PaymentRef   string    `json:"payment_ref"`
	AmountKobo   int64     `json:"amount_kobo"`
	ExpectedKobo int64     `json:"expected_kobo"`
	Reason       string    `json:"reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}
