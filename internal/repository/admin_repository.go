package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/orro/bus-booking/internal/model"
)

// AdminRepo provides access to operator console accounts.
type AdminRepo struct {
	db *sql.DB
}

// NewAdminRepo returns an AdminRepo bound to the provided database.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

// GetByEmail fetches an admin by normalized email.
func (r *AdminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	const q = `SELECT id, email, password_hash, phone, is_active, created_at
	           FROM admins WHERE email = ? LIMIT 1`
	var a model.Admin
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Phone, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Upsert creates an operator account or refreshes the password hash and
// phone of an existing one.  Used by the bootstrap path so a fresh
// deployment has a console login without manual SQL.
func (r *AdminRepo) Upsert(ctx context.Context, email, passwordHash, phone string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	const q = `INSERT INTO admins (email, password_hash, phone, is_active)
	           VALUES (?, ?, ?, TRUE)
	           ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), phone = VALUES(phone)`
	_, err := r.db.ExecContext(ctx, q, email, passwordHash, phone)
	return err
}

// GetByID fetches an admin by primary key.
func (r *AdminRepo) GetByID(ctx context.Context, id uint64) (*model.Admin, error) {
	const q = `SELECT id, email, password_hash, phone, is_active, created_at
	           FROM admins WHERE id = ? LIMIT 1`
	var a model.Admin
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Phone, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
