package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

// IdentityRepo persists passenger records.  Passengers are keyed by
// phone number; the record survives across checkout sessions while the
// single-use grant that proves a fresh verification lives in Redis.
type IdentityRepo struct {
	db *sql.DB
}

// NewIdentityRepo returns an IdentityRepo bound to the provided database.
func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{db: db} }

// UpsertVerified creates or refreshes the passenger row for a contact
// that just passed the code challenge, stamps verified_at, and returns
// the stored record.  Name and email are updated on every successful
// verification so the newest form data wins.
func (r *IdentityRepo) UpsertVerified(ctx context.Context, firstName, lastName, email, phone string) (*model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	now := time.Now().UTC()
	const q = `INSERT INTO passengers (first_name, last_name, email, phone, verified_at)
	           VALUES (?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	             first_name = VALUES(first_name),
	             last_name  = VALUES(last_name),
	             email      = VALUES(email),
	             verified_at = VALUES(verified_at)`
	if _, err := r.db.ExecContext(ctx, q, firstName, lastName, email, phone, now); err != nil {
		return nil, err
	}
	return r.GetByPhone(ctx, phone)
}

// GetByPhone fetches a passenger by phone number.
func (r *IdentityRepo) GetByPhone(ctx context.Context, phone string) (*model.Identity, error) {
	return r.getWhere(ctx, `phone = ?`, strings.TrimSpace(phone))
}

// GetByID fetches a passenger by primary key.
func (r *IdentityRepo) GetByID(ctx context.Context, id uint64) (*model.Identity, error) {
	return r.getWhere(ctx, `id = ?`, id)
}

func (r *IdentityRepo) getWhere(ctx context.Context, where string, arg interface{}) (*model.Identity, error) {
	q := `SELECT id, first_name, last_name, email, phone, verified_at, created_at, updated_at
	      FROM passengers WHERE ` + where + ` LIMIT 1`
	var p model.Identity
	var verifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &verifiedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	return &p, nil
}
