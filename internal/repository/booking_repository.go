package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/orro/bus-booking/internal/model"
)

// BookingRepo persists the permanent booking records created at
// settlement, together with their seat rows.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// Create inserts a booking and its booking_seats rows in one
// transaction, populating the generated ID.  The payment reference
// column is unique; a duplicate key error is surfaced as ErrDuplicateRef
// so reconciliation can treat a concurrent duplicate callback as already
// settled.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
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
	const q = `INSERT INTO bookings (trip_id, passenger_id, amount_kobo, payment_ref, status) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.TripID, b.IdentityID, b.AmountKobo, b.PaymentRef, string(model.BookingConfirmed))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // ER_DUP_ENTRY
			return ErrDuplicateRef
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.Status = model.BookingConfirmed
	if len(b.SeatIDs) > 0 {
		query := `INSERT INTO booking_seats (booking_id, seat_id) VALUES `
		args := make([]interface{}, 0, len(b.SeatIDs)*2)
		for i, sid := range b.SeatIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?)"
			args = append(args, b.ID, sid)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByPaymentRef returns the booking recorded for a payment reference,
// or ErrBookingNotFound.  Reconciliation uses this for its idempotency
// check before attempting a second settlement.
func (r *BookingRepo) GetByPaymentRef(ctx context.Context, ref string) (*model.Booking, error) {
	return r.getWhere(ctx, `payment_ref = ?`, ref)
}

// GetByID returns a single booking with its seat IDs.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.getWhere(ctx, `id = ?`, id)
}

func (r *BookingRepo) getWhere(ctx context.Context, where string, arg interface{}) (*model.Booking, error) {
	q := `SELECT id, trip_id, passenger_id, amount_kobo, payment_ref, status, cancelled_by, created_at, updated_at
	      FROM bookings WHERE ` + where
	var b model.Booking
	var status string
	var cancelledBy sql.NullString
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&b.ID, &b.TripID, &b.IdentityID, &b.AmountKobo, &b.PaymentRef, &status, &cancelledBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if cancelledBy.Valid {
		cb := cancelledBy.String
		b.CancelledBy = &cb
	}
	seats, err := r.seatIDs(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.SeatIDs = seats
	return &b, nil
}

// Cancel marks a confirmed booking cancelled and records who did it.  The
// seat override (SOLD -> FREE) is performed by the caller through the
// seat ledger so that the audited transition stays on the single mutation
// path.
func (r *BookingRepo) Cancel(ctx context.Context, id uint64, cancelledBy string) error {
	const q = `UPDATE bookings SET status = ?, cancelled_by = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(model.BookingCancelled), cancelledBy, time.Now().UTC(), id, string(model.BookingConfirmed))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ListByTrip returns all bookings for a trip, newest first, for the
// operator console.
func (r *BookingRepo) ListByTrip(ctx context.Context, tripID uint64) ([]model.Booking, error) {
	const q = `SELECT id, trip_id, passenger_id, amount_kobo, payment_ref, status, cancelled_by, created_at, updated_at
	           FROM bookings
	           WHERE trip_id = ?
	           ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		var status string
		var cancelledBy sql.NullString
		if err := rows.Scan(&b.ID, &b.TripID, &b.IdentityID, &b.AmountKobo, &b.PaymentRef, &status, &cancelledBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Status = model.BookingStatus(status)
		if cancelledBy.Valid {
			cb := cancelledBy.String
			b.CancelledBy = &cb
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bookings {
		seats, err := r.seatIDs(ctx, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].SeatIDs = seats
	}
	return bookings, nil
}

func (r *BookingRepo) seatIDs(ctx context.Context, bookingID uint64) ([]uint64, error) {
	const q = `SELECT bs.seat_id
	           FROM booking_seats bs
	           JOIN seats s ON s.id = bs.seat_id
	           WHERE bs.booking_id = ?
	           ORDER BY s.position`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
