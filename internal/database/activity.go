package database

import (
	"context"
	"fmt"
	"time"

	"roadassist/internal/models"
)

func (db *DB) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}

	query := `INSERT INTO activity_logs (user_id, action, request_id, details, created_at) VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, entry.UserID, entry.Action, entry.RequestID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetActivityByRequestID returns the audit trail of a request, oldest first.
func (db *DB) GetActivityByRequestID(ctx context.Context, requestID string) ([]*models.ActivityLog, error) {
	query := `SELECT id, user_id, action, request_id, details, created_at
              FROM activity_logs WHERE request_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer rows.Close()

	logs := []*models.ActivityLog{}
	for rows.Next() {
		var (
			l         models.ActivityLog
			details   string
			createdAt sqliteTime
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.RequestID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		l.Details = []byte(details)
		l.CreatedAt = createdAt.Time
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}
	return logs, nil
}
