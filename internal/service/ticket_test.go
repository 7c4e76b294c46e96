package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/orro/bus-booking/internal/model"
)

type ticketEnv struct {
	bookings *memBookings
	tickets  *TicketService
}

// newTicketEnv provisions one trip with a confirmed booking for seats
// 1 and 2 under payment reference "ref-1".
func newTicketEnv(t *testing.T) *ticketEnv {
	t.Helper()
	ledger := newMemLedger(1, 4)
	trips := newMemTrips(ledger)
	trips.add(model.Trip{
		Name:            "Lagos Express AM",
		PickupCity:      "Lagos",
		PickupLocation:  "Jibowu Terminal",
		DropoffCity:     "Abuja",
		DropoffLocation: "Utako Park",
		TravelDate:      "2025-06-02",
		DepartureTime:   "07:30 AM",
		Vehicle:         "Marcopolo 01",
		VehicleType:     "Luxury Bus",
		SeatCount:       4,
		PriceKobo:       500000,
	})

	identities := newMemIdentities()
	passenger, err := identities.UpsertVerified(context.Background(), "Ada", "Obi", "ada@example.com", "+2348000000002")
	if err != nil {
		t.Fatalf("upsert passenger: %v", err)
	}

	bookings := newMemBookings()
	b := &model.Booking{
		TripID:     1,
		IdentityID: passenger.ID,
		SeatIDs:    []uint64{1001, 1002},
		AmountKobo: 1000000,
		PaymentRef: "ref-1",
		Status:     model.BookingConfirmed,
	}
	if err := bookings.Create(context.Background(), b); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	return &ticketEnv{
		bookings: bookings,
		tickets:  NewTicketService(trips, identities, bookings, ledger),
	}
}

func TestTicket_GenerateByReference(t *testing.T) {
	e := newTicketEnv(t)

	pdf, filename, err := e.tickets.GenerateByReference(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if filename != "eticket-1.pdf" {
		t.Errorf("expected filename eticket-1.pdf, got %s", filename)
	}
	if len(pdf) == 0 || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("expected a PDF document, got %d bytes", len(pdf))
	}
}

func TestTicket_UnknownReference(t *testing.T) {
	e := newTicketEnv(t)

	if _, _, err := e.tickets.GenerateByReference(context.Background(), "ref-nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTicket_CancelledBookingRefused(t *testing.T) {
	e := newTicketEnv(t)

	if err := e.bookings.Cancel(context.Background(), 1, "admin:1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := e.tickets.GenerateByReference(context.Background(), "ref-1"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("cancelled booking should be refused, got %v", err)
	}
	if _, _, err := e.tickets.GenerateETicket(context.Background(), 1); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("console lookup of cancelled booking should be refused too, got %v", err)
	}
}
