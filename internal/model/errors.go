// Package model defines the domain records shared by the repository and
// service layers, together with the error taxonomy for seat-state
// transitions.  Conflict and Expired are expected, user-facing outcomes;
// PaymentMismatch and SettlementAfterExpiry imply a monetary discrepancy
// and must reach the operator queue, never be resolved silently.
package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when a lookup yields no record.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller does not own the resource it
// attempts to mutate, or attempts a transition the current state does
// not admit.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidInput is returned when a request fails validation before
// reaching persistence.
var ErrInvalidInput = errors.New("invalid input")

// ErrExpired is returned when a hold or one-time code is no longer valid.
// The caller recovers by restarting the affected step.
var ErrExpired = errors.New("expired")

// ErrVerificationFailed is the single, non-enumerating verification
// outcome: it covers code mismatch, code expiry and unknown contact alike
// so that callers cannot probe which contacts exist.
var ErrVerificationFailed = errors.New("invalid or expired code")

// ErrPaymentMismatch is returned when a payment callback's amount or
// reference does not match the session's computed total.  It is never
// auto-honored.
var ErrPaymentMismatch = errors.New("payment amount mismatch")

// ErrSettlementAfterExpiry is returned when a successful payment callback
// arrives after the hold expired and the seats could not be re-claimed.
// The payer was charged, so the case is escalated for manual
// reconciliation.
var ErrSettlementAfterExpiry = errors.New("settlement after hold expiry")

// ErrSeatsInUse guards the trip catalog: seat sets may only be resized or
// deleted while every seat is still FREE.
var ErrSeatsInUse = errors.New("seats have holds or sales")

// ConflictError reports that a multi-seat transition could not be applied
// because one or more seats were not in the expected state.  Nothing
// moved; Seats names the offending seat IDs so the caller can re-read
// current state and retry with a disjoint selection.
type ConflictError struct {
	Seats []uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seat state conflict on %d seat(s): %v", len(e.Seats), e.Seats)
}

// NewConflictError builds a ConflictError with the seat IDs sorted for
// deterministic output.
func NewConflictError(seats []uint64) *ConflictError {
	out := make([]uint64, len(seats))
	copy(out, seats)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return &ConflictError{Seats: out}
}

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
