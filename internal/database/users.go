package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"roadassist/internal/models"
)

const userColumns = `id, email, name, phone, role, is_verified, latitude, longitude, address, created_at, updated_at`

// CreateOrUpdateUser upserts by email. Stored mechanic location is kept when
// the incoming user carries none.
func (db *DB) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				id, email, name, phone, role, is_verified, latitude, longitude, address, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(email) DO UPDATE SET
                name = excluded.name,
                phone = excluded.phone,
                role = excluded.role,
                is_verified = excluded.is_verified,
                latitude = COALESCE(excluded.latitude, users.latitude),
                longitude = COALESCE(excluded.longitude, users.longitude),
                address = CASE WHEN excluded.address = '' THEN users.address ELSE excluded.address END,
                updated_at = excluded.updated_at
              RETURNING ` + userColumns

	var id interface{}
	if user.ID > 0 {
		id = user.ID
	}
	now := time.Now().UTC()

	saved, err := scanUser(db.QueryRowContext(ctx, query,
		id,
		user.Email,
		user.Name,
		user.Phone,
		user.Role,
		user.IsVerified,
		user.Latitude,
		user.Longitude,
		user.Address,
		now,
		now,
	))
	if err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}
	*user = *saved
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return db.queryUser(ctx, query, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return db.queryUser(ctx, query, email)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                    models.User
		lat, lon             sql.NullFloat64
		createdAt, updatedAt sqliteTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.IsVerified,
		&lat, &lon, &u.Address, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		u.Latitude = &lat.Float64
		u.Longitude = &lon.Float64
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

// UpdateMechanicLocation overwrites the stored location of a mechanic.
func (db *DB) UpdateMechanicLocation(ctx context.Context, id int64, loc models.Location) (*models.User, error) {
	query := `UPDATE users SET latitude = ?, longitude = ?, address = ?, updated_at = ?
              WHERE id = ? AND role = ?
              RETURNING ` + userColumns
	user, err := scanUser(db.QueryRowContext(ctx, query,
		loc.Latitude, loc.Longitude, loc.Address, time.Now().UTC(), id, models.RoleMechanic))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update mechanic location: %w", err)
	}
	return user, nil
}

func (db *DB) GetUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by role: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
