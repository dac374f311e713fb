package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rsclarke/hookcatch/internal/models"
)

// CreateSession stores s.
func CreateSession(d *sql.DB, s models.Session) error {
	_, err := d.Exec(
		"INSERT INTO sessions (id, username, created_at, expires_at) VALUES (?, ?, ?, ?)",
		s.ID, s.Username, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

// GetSession returns the session with id, or nil if there is none.
// Expiry is not checked here.
func GetSession(d *sql.DB, id string) (*models.Session, error) {
	var s models.Session
	err := d.QueryRow(
		"SELECT id, username, created_at, expires_at FROM sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.Username, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes the session with id.
func DeleteSession(d *sql.DB, id string) error {
	_, err := d.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// DeleteExpiredSessions removes sessions that expired before now and
// returns how many were removed.
func DeleteExpiredSessions(d *sql.DB, now time.Time) (int64, error) {
	result, err := d.Exec("DELETE FROM sessions WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
