package model

import "time"

// Identity is a passenger record.  It persists across checkout sessions
// and becomes verified once a one-time-code challenge succeeds for the
// associated phone number.  A checkout session holds only the identity's
// ID, never a copy of the record.
type Identity struct {
	ID         uint64     // passengers.id
	FirstName  string     // passengers.first_name
	LastName   string     // passengers.last_name
	Email      string     // passengers.email
	Phone      string     // passengers.phone (unique)
	VerifiedAt *time.Time // passengers.verified_at (nullable)
	CreatedAt  time.Time  // passengers.created_at
	UpdatedAt  time.Time  // passengers.updated_at
}

// Admin is an operator console account.  Admins authenticate with email
// and password followed by a one-time code sent to their phone.
type Admin struct {
	ID           uint64    // admins.id
	Email        string    // admins.email
	PasswordHash string    // admins.password_hash (bcrypt)
	Phone        string    // admins.phone
	IsActive     bool      // admins.is_active
	CreatedAt    time.Time // admins.created_at
}
