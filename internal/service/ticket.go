package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/orro/bus-booking/internal/model"
)

// TicketBookings is the booking lookup surface the renderer needs: the
// console fetches by ID, passengers by the payment reference they hold.
type TicketBookings interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	GetByPaymentRef(ctx context.Context, ref string) (*model.Booking, error)
}

// TicketService renders e-tickets for confirmed bookings as PDF.
type TicketService struct {
	trips      TripStore
	identities IdentityStore
	bookings   TicketBookings
	ledger     SeatLedger
}

// NewTicketService wires the ticket renderer.
func NewTicketService(trips TripStore, identities IdentityStore, bookings TicketBookings, ledger SeatLedger) *TicketService {
	return &TicketService{trips: trips, identities: identities, bookings: bookings, ledger: ledger}
}

// GenerateETicket builds the PDF for a booking, looked up by ID.
func (t *TicketService) GenerateETicket(ctx context.Context, bookingID uint64) ([]byte, string, error) {
	b, err := t.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	return t.render(ctx, b)
}

// GenerateByReference builds the PDF for the booking settled under a
// payment reference.  The reference is opaque and unguessable, so it
// doubles as the passenger's download capability.
func (t *TicketService) GenerateByReference(ctx context.Context, ref string) ([]byte, string, error) {
	b, err := t.bookings.GetByPaymentRef(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return t.render(ctx, b)
}

// render draws the ticket.  Cancelled bookings are refused: their seats
// are back in circulation.
func (t *TicketService) render(ctx context.Context, b *model.Booking) ([]byte, string, error) {
	if b.Status != model.BookingConfirmed {
		return nil, "", model.ErrForbidden
	}
	trip, err := t.trips.GetByID(ctx, b.TripID)
	if err != nil {
		return nil, "", err
	}
	passenger, err := t.identities.GetByID(ctx, b.IdentityID)
	if err != nil {
		return nil, "", err
	}
	positions, err := t.seatPositions(ctx, b)
	if err != nil {
		return nil, "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BUS E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking Ref : #%d (%s)", b.ID, b.PaymentRef),
		fmt.Sprintf("Passenger   : %s %s", passenger.FirstName, passenger.LastName),
		fmt.Sprintf("Phone       : %s", passenger.Phone),
		fmt.Sprintf("Trip        : %s", trip.Name),
		fmt.Sprintf("Route       : %s (%s) -> %s (%s)", trip.PickupCity, trip.PickupLocation, trip.DropoffCity, trip.DropoffLocation),
		fmt.Sprintf("Date        : %s, departs %s", trip.TravelDate, trip.DepartureTime),
		fmt.Sprintf("Vehicle     : %s (%s)", trip.Vehicle, trip.VehicleType),
		fmt.Sprintf("Seats       : %s", joinPositions(positions)),
		fmt.Sprintf("Amount Paid : NGN %s", formatNaira(b.AmountKobo)),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please present this ticket at the terminal before departure. Seats are assigned by position number.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("eticket-%d.pdf", b.ID)
	return buf.Bytes(), filename, nil
}

func (t *TicketService) seatPositions(ctx context.Context, b *model.Booking) ([]uint32, error) {
	seats, err := t.ledger.ListSeats(ctx, b.TripID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]uint32, len(seats))
	for _, s := range seats {
		byID[s.ID] = s.Position
	}
	positions := make([]uint32, 0, len(b.SeatIDs))
	for _, id := range b.SeatIDs {
		positions = append(positions, byID[id])
	}
	return positions, nil
}

func joinPositions(positions []uint32) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ", ")
}

// formatNaira renders kobo as naira with two decimals and thousands
// separators.
func formatNaira(kobo int64) string {
	naira := kobo / 100
	rem := kobo % 100
	s := strconv.FormatInt(naira, 10)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 && c != '-' {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return fmt.Sprintf("%s.%02d", string(out), rem)
}
