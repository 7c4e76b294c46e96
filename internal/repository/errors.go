// Package repository implements MySQL persistence for the booking
// domain.  Sentinel errors and the ConflictError type live in the model
// package so the service layer and its in-memory test doubles can share
// them; the lookup sentinels here wrap model.ErrNotFound so callers can
// match either the specific or the generic form with errors.Is.
package repository

import (
	"errors"
	"fmt"

	"github.com/orro/bus-booking/internal/model"
)

// ErrTripNotFound is returned when a trip lookup yields no rows.
var ErrTripNotFound = fmt.Errorf("trip: %w", model.ErrNotFound)

// ErrBookingNotFound is returned when a booking lookup yields no rows.
var ErrBookingNotFound = fmt.Errorf("booking: %w", model.ErrNotFound)

// ErrDuplicateRef is returned when inserting a booking whose payment
// reference already exists.  Reconciliation treats this as proof that a
// concurrent duplicate callback already settled the session.
var ErrDuplicateRef = errors.New("payment reference already recorded")
