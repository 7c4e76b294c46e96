package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/orro/bus-booking/internal/model"
)

// CityRepo maintains the route directory shown on the search form.
type CityRepo struct {
	db *sql.DB
}

// NewCityRepo returns a CityRepo bound to the provided database.
func NewCityRepo(db *sql.DB) *CityRepo { return &CityRepo{db: db} }

// List returns all cities ordered by name.
func (r *CityRepo) List(ctx context.Context) ([]model.City, error) {
	const q = `SELECT id, name, created_at FROM cities ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cities := make([]model.City, 0)
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// Create inserts a city, ignoring case-insensitive duplicates.
func (r *CityRepo) Create(ctx context.Context, name string) (uint64, error) {
	name = strings.TrimSpace(name)
	res, err := r.db.ExecContext(ctx, `INSERT INTO cities (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Delete removes a city from the directory.  Trips referencing the name
// are untouched; the directory only feeds the search form.
func (r *CityRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
