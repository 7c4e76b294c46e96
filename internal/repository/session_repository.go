package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

// SessionRepo persists checkout sessions.  Sessions are short-lived but
// must survive the process: the payment provider's webhook arrives on its
// own schedule and is matched back to a session by payment reference.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a new session row.  Seat positions and resolved seat IDs
// are stored as JSON arrays; they are written once (when the hold
// succeeds) and only ever read back as a whole.
func (r *SessionRepo) Create(ctx context.Context, s *model.CheckoutSession) error {
	positions, seatIDs, err := encodeSeats(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO checkout_sessions
	           (id, trip_id, state, hold_id, identity_id, hire_mode, seat_positions, seat_ids, total_kobo, payment_ref, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.TripID, string(s.State), s.HoldID, s.IdentityID, s.HireMode,
		positions, seatIDs, s.TotalKobo, s.PaymentRef, now, now)
	return err
}

// Update rewrites the mutable columns of a session.
func (r *SessionRepo) Update(ctx context.Context, s *model.CheckoutSession) error {
	positions, seatIDs, err := encodeSeats(s)
	if err != nil {
		return err
	}
	const q = `UPDATE checkout_sessions
	           SET state = ?, hold_id = ?, identity_id = ?, seat_positions = ?, seat_ids = ?, total_kobo = ?, payment_ref = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		string(s.State), s.HoldID, s.IdentityID, positions, seatIDs, s.TotalKobo, s.PaymentRef,
		time.Now().UTC(), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Get loads a session by its ID.
func (r *SessionRepo) Get(ctx context.Context, id string) (*model.CheckoutSession, error) {
	return r.getWhere(ctx, `id = ?`, id)
}

// GetByPaymentRef loads the session that requested a payment intent with
// the given provider reference.  Payment reconciliation uses this as its
// entry point.
func (r *SessionRepo) GetByPaymentRef(ctx context.Context, ref string) (*model.CheckoutSession, error) {
	return r.getWhere(ctx, `payment_ref = ?`, ref)
}

func (r *SessionRepo) getWhere(ctx context.Context, where string, arg interface{}) (*model.CheckoutSession, error) {
	q := `SELECT id, trip_id, state, hold_id, identity_id, hire_mode, seat_positions, seat_ids, total_kobo, payment_ref, created_at, updated_at
	      FROM checkout_sessions WHERE ` + where
	var s model.CheckoutSession
	var state string
	var holdID, paymentRef sql.NullString
	var identityID sql.NullInt64
	var positions, seatIDs []byte
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&s.ID, &s.TripID, &state, &holdID, &identityID, &s.HireMode,
		&positions, &seatIDs, &s.TotalKobo, &paymentRef, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	s.State = model.SessionState(state)
	if holdID.Valid {
		h := holdID.String
		s.HoldID = &h
	}
	if identityID.Valid {
		i := uint64(identityID.Int64)
		s.IdentityID = &i
	}
	if paymentRef.Valid {
		p := paymentRef.String
		s.PaymentRef = &p
	}
	if len(positions) > 0 {
		if err := json.Unmarshal(positions, &s.SeatPositions); err != nil {
			return nil, err
		}
	}
	if len(seatIDs) > 0 {
		if err := json.Unmarshal(seatIDs, &s.SeatIDs); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func encodeSeats(s *model.CheckoutSession) ([]byte, []byte, error) {
	positions, err := json.Marshal(s.SeatPositions)
	if err != nil {
		return nil, nil, err
	}
	seatIDs, err := json.Marshal(s.SeatIDs)
	if err != nil {
		return nil, nil, err
	}
	return positions, seatIDs, nil
}
