package service

import (
	"context"
	"strings"

	"github.com/orro/bus-booking/internal/model"
)

// TripAdminStore is the catalog's persistence surface.
type TripAdminStore interface {
	TripStore
	CreateWithSeats(ctx context.Context, t *model.Trip) error
	Update(ctx context.Context, t *model.Trip) error
	Delete(ctx context.Context, id uint64) error
	GetByIDs(ctx context.Context, ids []uint64) ([]model.Trip, error)
	Search(ctx context.Context, pickupCity, dropoffCity, travelDate string) ([]model.Trip, error)
	ListAll(ctx context.Context) ([]model.Trip, error)
}

// CatalogLedger extends the seat ledger with the occupancy count the
// catalog's immutability guard needs.
type CatalogLedger interface {
	SeatLedger
	CountNotFree(ctx context.Context, tripID uint64) (int, error)
}

// BookingAdminStore is the booking surface the operator console uses.
type BookingAdminStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	Cancel(ctx context.Context, id uint64, cancelledBy string) error
	ListByTrip(ctx context.Context, tripID uint64) ([]model.Booking, error)
}

// CityStore maintains the route directory.
type CityStore interface {
	List(ctx context.Context) ([]model.City, error)
	Create(ctx context.Context, name string) (uint64, error)
	Delete(ctx context.Context, id uint64) error
}

// Catalog manages trips, their seat sets and the city directory, and
// performs the audited administrative overrides.  Its central rule: a
// trip's seat set is provisioned exactly once at creation and never
// resized afterwards, so seat IDs stay stable for every hold, session
// and booking that references them.
type Catalog struct {
	trips    TripAdminStore
	cities   CityStore
	bookings BookingAdminStore
	ledger   CatalogLedger
}

// NewCatalog wires the trip catalog.
func NewCatalog(trips TripAdminStore, cities CityStore, bookings BookingAdminStore, ledger CatalogLedger) *Catalog {
	return &Catalog{trips: trips, cities: cities, bookings: bookings, ledger: ledger}
}

// CreateTrip validates and stores a new trip with its seat set.
func (c *Catalog) CreateTrip(ctx context.Context, t *model.Trip) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.PickupCity) == "" || strings.TrimSpace(t.DropoffCity) == "" {
		return model.ErrInvalidInput
	}
	if t.SeatCount == 0 || t.PriceKobo < 0 {
		return model.ErrInvalidInput
	}
	return c.trips.CreateWithSeats(ctx, t)
}

// UpdateTrip edits a trip's schedule, route and pricing.  The stored
// seat count always wins over whatever the caller sent: resizing a
// provisioned seat set would orphan or fabricate seats out from under
// live holds and bookings.
func (c *Catalog) UpdateTrip(ctx context.Context, t *model.Trip) error {
	current, err := c.trips.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.SeatCount = current.SeatCount
	return c.trips.Update(ctx, t)
}

// DeleteTrip removes a trip only while every seat is still FREE.  Any
// hold or sale makes the trip permanent until those are resolved.
func (c *Catalog) DeleteTrip(ctx context.Context, id uint64) error {
	n, err := c.ledger.CountNotFree(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return model.ErrSeatsInUse
	}
	return c.trips.Delete(ctx, id)
}

// GetTrip returns one trip.
func (c *Catalog) GetTrip(ctx context.Context, id uint64) (*model.Trip, error) {
	return c.trips.GetByID(ctx, id)
}

// GetTrips returns the trips for a set of IDs.
func (c *Catalog) GetTrips(ctx context.Context, ids []uint64) ([]model.Trip, error) {
	return c.trips.GetByIDs(ctx, ids)
}

// SearchTrips finds trips by route and optional travel date.
func (c *Catalog) SearchTrips(ctx context.Context, pickupCity, dropoffCity, travelDate string) ([]model.Trip, error) {
	return c.trips.Search(ctx, pickupCity, dropoffCity, travelDate)
}

// ListTrips returns every trip for the operator console.
func (c *Catalog) ListTrips(ctx context.Context) ([]model.Trip, error) {
	return c.trips.ListAll(ctx)
}

// ListSeats returns the live seat map for a trip.
func (c *Catalog) ListSeats(ctx context.Context, tripID uint64) ([]model.Seat, error) {
	return c.ledger.ListSeats(ctx, tripID)
}

// ListCities returns the route directory.
func (c *Catalog) ListCities(ctx context.Context) ([]model.City, error) {
	return c.cities.List(ctx)
}

// AddCity inserts a city into the directory.
func (c *Catalog) AddCity(ctx context.Context, name string) (uint64, error) {
	return c.cities.Create(ctx, name)
}

// RemoveCity deletes a city from the directory.
func (c *Catalog) RemoveCity(ctx context.Context, id uint64) error {
	return c.cities.Delete(ctx, id)
}

// ListBookings returns a trip's bookings for the operator console.
func (c *Catalog) ListBookings(ctx context.Context, tripID uint64) ([]model.Booking, error) {
	return c.bookings.ListByTrip(ctx, tripID)
}

// GetBooking returns one booking.
func (c *Catalog) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return c.bookings.GetByID(ctx, id)
}

// CancelBooking is the audited administrative override: it marks the
// booking cancelled, records which operator did it, and returns the
// booking's seats from SOLD to FREE through the same atomic transition
// every other seat mutation uses.
func (c *Catalog) CancelBooking(ctx context.Context, bookingID uint64, cancelledBy string) error {
	b, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != model.BookingConfirmed {
		return model.ErrForbidden
	}
	if err := c.bookings.Cancel(ctx, bookingID, cancelledBy); err != nil {
		return err
	}
	return c.ledger.Transition(ctx, b.TripID, b.SeatIDs, model.SeatSold, model.SeatFree, cancelledBy)
}
