package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

// HoldRepo persists holds and their seat sets.  All timestamps are UTC;
// expiry comparisons are made against UTC_TIMESTAMP() so the database
// clock is the single source of truth for "expired".
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// Create inserts a hold and its seat rows in one transaction.
func (r *HoldRepo) Create(ctx context.Context, h *model.Hold) error {
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
	const q = `INSERT INTO holds (id, session_id, trip_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, h.ID, h.SessionID, h.TripID,
		h.ExpiresAt.UTC().Format("2006-01-02 15:04:05"), h.CreatedAt.UTC().Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	if len(h.SeatIDs) > 0 {
		query := `INSERT INTO hold_seats (hold_id, seat_id) VALUES `
		args := make([]interface{}, 0, len(h.SeatIDs)*2)
		for i, sid := range h.SeatIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?)"
			args = append(args, h.ID, sid)
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

// Get loads a hold and its seat IDs.  Returns model.ErrNotFound when the
// hold does not exist (e.g. already released or settled).
func (r *HoldRepo) Get(ctx context.Context, id string) (*model.Hold, error) {
	const q = `SELECT id, session_id, trip_id, expires_at, created_at FROM holds WHERE id = ?`
	var h model.Hold
	err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.SessionID, &h.TripID, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	seats, err := r.seatIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	h.SeatIDs = seats
	return &h, nil
}

// Delete removes a hold and, via the FK cascade, its seat rows.  Deleting
// a missing hold is a no-op so release stays idempotent.
func (r *HoldRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, id)
	return err
}

// UpdateExpiry resets the expiry timestamp.  It only touches holds whose
// current expiry is still in the future; extending an expired hold is a
// race with the sweep that the sweep must win.
func (r *HoldRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	const q = `UPDATE holds SET expires_at = ? WHERE id = ? AND expires_at > UTC_TIMESTAMP()`
	res, err := r.db.ExecContext(ctx, q, expiresAt.UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrExpired
	}
	return nil
}

// ListExpired returns every hold whose expiry has passed, seat sets
// included, for the sweep to release.
func (r *HoldRepo) ListExpired(ctx context.Context, now time.Time) ([]model.Hold, error) {
	const q = `SELECT id, session_id, trip_id, expires_at, created_at
	           FROM holds
	           WHERE expires_at <= ?
	           ORDER BY expires_at ASC`
	rows, err := r.db.QueryContext(ctx, q, now.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.ID, &h.SessionID, &h.TripID, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range holds {
		seats, err := r.seatIDs(ctx, holds[i].ID)
		if err != nil {
			return nil, err
		}
		holds[i].SeatIDs = seats
	}
	return holds, nil
}

func (r *HoldRepo) seatIDs(ctx context.Context, holdID string) ([]uint64, error) {
	const q = `SELECT hs.seat_id
	           FROM hold_seats hs
	           JOIN seats s ON s.id = hs.seat_id
	           WHERE hs.hold_id = ?
	           ORDER BY s.position`
	rows, err := r.db.QueryContext(ctx, q, holdID)
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

// buildIn is a small helper shared by the repositories that filter on an
// ID set.
func buildIn(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
