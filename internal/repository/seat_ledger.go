package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

// SeatLedgerRepo is the authoritative record of seat state per trip.  It
// exposes exactly one mutation path, Transition, which moves a full seat
// set between states atomically: either every seat is in the expected
// `from` state and all move to `to`, or nothing moves and the conflict
// names the seats that did not match.  Every hold, release, expiry sweep
// and settlement in the system funnels through this method, which is what
// makes it the sole arbiter of races on a trip's seats.
type SeatLedgerRepo struct {
	db *sql.DB
}

// NewSeatLedgerRepo returns a SeatLedgerRepo bound to the given database.
func NewSeatLedgerRepo(db *sql.DB) *SeatLedgerRepo { return &SeatLedgerRepo{db: db} }

// ListSeats returns every seat of a trip ordered by position ascending.
// It is read-only and safe for unbounded concurrent callers.
func (r *SeatLedgerRepo) ListSeats(ctx context.Context, tripID uint64) ([]model.Seat, error) {
	const q = `SELECT id, trip_id, position, state, holder_session, booking_id, updated_at
	           FROM seats
	           WHERE trip_id = ?
	           ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		var holder sql.NullString
		var bookingID sql.NullInt64
		if err := rows.Scan(&s.ID, &s.TripID, &s.Position, &s.State, &holder, &bookingID, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if holder.Valid {
			h := holder.String
			s.HolderSession = &h
		}
		if bookingID.Valid {
			b := uint64(bookingID.Int64)
			s.BookingID = &b
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// Transition atomically moves all seats in seatIDs from `from` to `to`.
// When from is HELD the current holder must equal actor, so a stale
// release can never free seats re-acquired by another session.  When to
// is HELD the actor is recorded as holder; leaving HELD clears it.
//
// The statement updates only rows matching the expected state; a
// rows-affected shortfall rolls the transaction back and the offending
// seats are re-read so the returned ConflictError can name them.
func (r *SeatLedgerRepo) Transition(ctx context.Context, tripID uint64, seatIDs []uint64, from, to model.SeatState, actor string) error {
	if len(seatIDs) == 0 {
		return nil
	}
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seatIDs)), ",")
	query := `UPDATE seats SET state = ?, holder_session = ?, updated_at = ? WHERE trip_id = ? AND id IN (` + placeholders + `) AND state = ?`

	var holder interface{} // NULL unless the seats are becoming HELD
	if to == model.SeatHeld {
		holder = actor
	}
	args := make([]interface{}, 0, len(seatIDs)+6)
	args = append(args, string(to), holder, time.Now().UTC(), tripID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	args = append(args, string(from))
	if from == model.SeatHeld {
		query += ` AND holder_session = ?`
		args = append(args, actor)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(seatIDs)) {
		// Roll back before naming the conflicting seats: nothing moves.
		_ = tx.Rollback()
		mismatched, lookupErr := r.mismatchedSeats(ctx, tripID, seatIDs, from, actor)
		if lookupErr != nil {
			return lookupErr
		}
		return model.NewConflictError(mismatched)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AttachBooking records the settled booking on seats that just moved to
// SOLD.  Separate from Transition because the booking row (and its ID)
// is created only after the seats are secured.
func (r *SeatLedgerRepo) AttachBooking(ctx context.Context, tripID uint64, seatIDs []uint64, bookingID uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seatIDs)), ",")
	query := `UPDATE seats SET booking_id = ? WHERE trip_id = ? AND id IN (` + placeholders + `) AND state = ?`
	args := make([]interface{}, 0, len(seatIDs)+3)
	args = append(args, bookingID, tripID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	args = append(args, string(model.SeatSold))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// mismatchedSeats re-reads the requested seats outside the failed
// transaction and returns the IDs whose state (or holder) no longer
// matches the expectation.  Seats that vanished entirely are reported as
// mismatched too.
func (r *SeatLedgerRepo) mismatchedSeats(ctx context.Context, tripID uint64, seatIDs []uint64, from model.SeatState, actor string) ([]uint64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seatIDs)), ",")
	query := `SELECT id, state, holder_session FROM seats WHERE trip_id = ? AND id IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, tripID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[uint64]bool, len(seatIDs))
	var mismatched []uint64
	for rows.Next() {
		var id uint64
		var state string
		var holder sql.NullString
		if err := rows.Scan(&id, &state, &holder); err != nil {
			return nil, err
		}
		seen[id] = true
		ok := state == string(from)
		if ok && from == model.SeatHeld && (!holder.Valid || holder.String != actor) {
			ok = false
		}
		if !ok {
			mismatched = append(mismatched, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range seatIDs {
		if !seen[id] {
			mismatched = append(mismatched, id)
		}
	}
	return mismatched, nil
}

// ProvisionSeats inserts the full seat set 1..count for a newly created
// trip inside the provided transaction.  The catalog forbids calling this
// more than once per trip.
func ProvisionSeatsTx(ctx context.Context, tx *sql.Tx, tripID uint64, count uint32) error {
	if count == 0 {
		return nil
	}
	query := `INSERT INTO seats (trip_id, position, state) VALUES `
	args := make([]interface{}, 0, int(count)*3)
	for i := uint32(1); i <= count; i++ {
		if i > 1 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, tripID, i, string(model.SeatFree))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// CountNotFree reports how many of a trip's seats have left the FREE
// state.  The catalog uses it to refuse deletes and resizes once any
// hold or sale exists.
func (r *SeatLedgerRepo) CountNotFree(ctx context.Context, tripID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE trip_id = ? AND state <> ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, tripID, string(model.SeatFree)).Scan(&n)
	return n, err
}
