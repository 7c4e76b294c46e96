package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/orro/bus-booking/internal/model"
)

// TripRepo provides CRUD and search over trips.  Seat provisioning is
// transactional with trip creation so a trip is never visible without
// its complete seat set.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a TripRepo bound to the provided database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// DB exposes the underlying handle for callers that need to compose a
// transaction across trip and seat provisioning.
func (r *TripRepo) DB() *sql.DB { return r.db }

const tripColumns = `id, name, pickup_city, pickup_location, dropoff_city, dropoff_location,
                     travel_date, departure_time, arrival_time, price_kobo, vehicle, vehicle_type,
                     seat_count, is_hire_trip, created_at, updated_at`

// CreateTx inserts a trip inside the provided transaction, populating
// its generated ID.  The caller provisions the seat set in the same
// transaction and commits.
func (r *TripRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Trip) error {
	const q = `INSERT INTO trips
	           (name, pickup_city, pickup_location, dropoff_city, dropoff_location,
	            travel_date, departure_time, arrival_time, price_kobo, vehicle, vehicle_type,
	            seat_count, is_hire_trip)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		t.Name, t.PickupCity, t.PickupLocation, t.DropoffCity, t.DropoffLocation,
		t.TravelDate, t.DepartureTime, t.ArrivalTime, t.PriceKobo, t.Vehicle, t.VehicleType,
		t.SeatCount, t.IsHireTrip)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// CreateWithSeats inserts a trip and provisions its full seat set
// (positions 1..SeatCount, all FREE) in one transaction, so a trip is
// never observable without its seats.
func (r *TripRepo) CreateWithSeats(ctx context.Context, t *model.Trip) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := r.CreateTx(ctx, tx, t); err != nil {
		return err
	}
	if err := ProvisionSeatsTx(ctx, tx, t.ID, t.SeatCount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Update rewrites every editable trip column.  seat_count is absent by
// design: the seat set is immutable once provisioned, and the catalog
// strips resize attempts before calling here.
func (r *TripRepo) Update(ctx context.Context, t *model.Trip) error {
	const q = `UPDATE trips
	           SET name = ?, pickup_city = ?, pickup_location = ?, dropoff_city = ?, dropoff_location = ?,
	               travel_date = ?, departure_time = ?, arrival_time = ?, price_kobo = ?, vehicle = ?,
	               vehicle_type = ?, is_hire_trip = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		t.Name, t.PickupCity, t.PickupLocation, t.DropoffCity, t.DropoffLocation,
		t.TravelDate, t.DepartureTime, t.ArrivalTime, t.PriceKobo, t.Vehicle,
		t.VehicleType, t.IsHireTrip, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTripNotFound
	}
	return nil
}

// Delete removes a trip; the FK cascade removes its seats.  The catalog
// verifies every seat is FREE before calling.
func (r *TripRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTripNotFound
	}
	return nil
}

// GetByID fetches one trip.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`
	row := r.db.QueryRowContext(ctx, q, id)
	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetByIDs fetches a set of trips in one query, preserving no particular
// order.  Used by the storefront's fetch-by-id endpoint.
func (r *TripRepo) GetByIDs(ctx context.Context, ids []uint64) ([]model.Trip, error) {
	if len(ids) == 0 {
		return []model.Trip{}, nil
	}
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id IN (` + buildIn(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return r.queryTrips(ctx, q, args...)
}

// Search returns trips matching a route and travel date.  City matching
// is case-insensitive; an empty travelDate matches any date.
func (r *TripRepo) Search(ctx context.Context, pickupCity, dropoffCity, travelDate string) ([]model.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips
	      WHERE LOWER(pickup_city) = ? AND LOWER(dropoff_city) = ?`
	args := []interface{}{
		strings.ToLower(strings.TrimSpace(pickupCity)),
		strings.ToLower(strings.TrimSpace(dropoffCity)),
	}
	if travelDate != "" {
		q += ` AND travel_date = ?`
		args = append(args, travelDate)
	}
	q += ` ORDER BY travel_date, departure_time`
	return r.queryTrips(ctx, q, args...)
}

// ListAll returns every trip, newest travel date first, for the operator
// console.
func (r *TripRepo) ListAll(ctx context.Context) ([]model.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips ORDER BY travel_date DESC, departure_time`
	return r.queryTrips(ctx, q)
}

func (r *TripRepo) queryTrips(ctx context.Context, q string, args ...interface{}) ([]model.Trip, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trips := make([]model.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trips, nil
}

// rowScanner lets scanTrip work over both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*model.Trip, error) {
	var t model.Trip
	err := row.Scan(
		&t.ID, &t.Name, &t.PickupCity, &t.PickupLocation, &t.DropoffCity, &t.DropoffLocation,
		&t.TravelDate, &t.DepartureTime, &t.ArrivalTime, &t.PriceKobo, &t.Vehicle, &t.VehicleType,
		&t.SeatCount, &t.IsHireTrip, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
