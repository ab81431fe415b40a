package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roadassist/internal/lifecycle"
	"roadassist/internal/models"
)

const requestColumns = `id, request_id, end_user_id, mechanic_id, service_type, vehicle_type,
	vehicle_make, vehicle_model, vehicle_number, description, customer_notes, mechanic_notes,
	latitude, longitude, address, images, cost, status, rejection_reason, rejected_by,
	accepted_at, started_at, completed_at, cancelled_at, created_at, updated_at`

func scanRequest(row rowScanner) (*models.ServiceRequest, error) {
	var (
		r                                               models.ServiceRequest
		mechanicID, rejectedBy                          sql.NullInt64
		cost                                            sql.NullFloat64
		images                                          string
		acceptedAt, startedAt, completedAt, cancelledAt sqliteTime
		createdAt, updatedAt                            sqliteTime
	)
	err := row.Scan(
		&r.ID, &r.RequestID, &r.EndUserID, &mechanicID, &r.ServiceType, &r.VehicleType,
		&r.VehicleMake, &r.VehicleModel, &r.VehicleNumber, &r.Description, &r.CustomerNotes, &r.MechanicNotes,
		&r.Latitude, &r.Longitude, &r.Address, &images, &cost, &r.Status, &r.RejectionReason, &rejectedBy,
		&acceptedAt, &startedAt, &completedAt, &cancelledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mechanicID.Valid {
		r.MechanicID = &mechanicID.Int64
	}
	if rejectedBy.Valid {
		r.RejectedBy = &rejectedBy.Int64
	}
	if cost.Valid {
		r.Cost = &cost.Float64
	}
	r.AcceptedAt = acceptedAt.Ptr()
	r.StartedAt = startedAt.Ptr()
	r.CompletedAt = completedAt.Ptr()
	r.CancelledAt = cancelledAt.Ptr()
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time

	r.Images = []string{}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images of request %d: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (db *DB) CreateRequest(ctx context.Context, req *models.ServiceRequest) error {
	images := req.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	now := req.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	query := `INSERT INTO service_requests (
				request_id, end_user_id, service_type, vehicle_type, vehicle_make, vehicle_model,
				vehicle_number, description, customer_notes, latitude, longitude, address,
				images, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		req.RequestID,
		req.EndUserID,
		req.ServiceType,
		req.VehicleType,
		req.VehicleMake,
		req.VehicleModel,
		req.VehicleNumber,
		req.Description,
		req.CustomerNotes,
		req.Latitude,
		req.Longitude,
		req.Address,
		string(imagesJSON),
		models.StatusPending,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.Status = models.StatusPending
	req.MechanicID = nil
	req.Images = images
	req.CreatedAt = now
	req.UpdatedAt = now
	return nil
}

func (db *DB) GetRequest(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = ?`
	req, err := scanRequest(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (db *DB) GetRequestByRequestID(ctx context.Context, requestID string) (*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE request_id = ?`
	req, err := scanRequest(db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request by request_id: %w", err)
	}
	return req, nil
}

// ClaimRequest assigns mechanicID to a pending, unassigned request in a single
// conditional update. ErrConcurrentModification means the row no longer qualifies.
func (db *DB) ClaimRequest(ctx context.Context, id, mechanicID int64, at time.Time) (*models.ServiceRequest, error) {
	query := `UPDATE service_requests
              SET status = ?, mechanic_id = ?, accepted_at = ?, updated_at = ?
              WHERE id = ? AND status = ? AND mechanic_id IS NULL
              RETURNING ` + requestColumns
	req, err := scanRequest(db.QueryRowContext(ctx, query,
		models.StatusAccepted, mechanicID, at, at, id, models.StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConcurrentModification
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}
	return req, nil
}

// TransitionRequest applies t only if the row still has t.FromStatus and the
// expected mechanic.
func (db *DB) TransitionRequest(ctx context.Context, t models.Transition) (*models.ServiceRequest, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{t.ToStatus, t.At}

	if col := lifecycle.TimestampFor(t.ToStatus); col != "" {
		sets = append(sets, col+" = ?")
		args = append(args, t.At)
	}
	if t.ClearMechanic {
		sets = append(sets, "mechanic_id = NULL")
	}
	if t.RejectedBy != nil {
		sets = append(sets, "rejected_by = ?")
		args = append(args, *t.RejectedBy)
	}
	if t.RejectionReason != "" {
		sets = append(sets, "rejection_reason = ?")
		args = append(args, t.RejectionReason)
	}
	if t.Cost != nil {
		sets = append(sets, "cost = ?")
		args = append(args, *t.Cost)
	}
	if t.AppendMechanicNotes != "" {
		sets = append(sets, "mechanic_notes = CASE WHEN mechanic_notes = '' THEN ? ELSE mechanic_notes || char(10) || ? END")
		args = append(args, t.AppendMechanicNotes, t.AppendMechanicNotes)
	}
	if t.AppendCustomerNotes != "" {
		sets = append(sets, "customer_notes = CASE WHEN customer_notes = '' THEN ? ELSE customer_notes || char(10) || ? END")
		args = append(args, t.AppendCustomerNotes, t.AppendCustomerNotes)
	}

	where := "id = ? AND status = ?"
	args = append(args, t.ID, t.FromStatus)
	if t.ExpectMechanicID == nil {
		where += " AND mechanic_id IS NULL"
	} else {
		where += " AND mechanic_id = ?"
		args = append(args, *t.ExpectMechanicID)
	}

	query := `UPDATE service_requests SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where + ` RETURNING ` + requestColumns
	req, err := scanRequest(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConcurrentModification
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition request %d to %s: %w", t.ID, t.ToStatus, err)
	}
	return req, nil
}

// ListOpenRequests returns pending unassigned requests matching filter, oldest first.
func (db *DB) ListOpenRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ServiceRequest, error) {
	conds := []string{"status = ?", "mechanic_id IS NULL"}
	args := []interface{}{models.StatusPending}

	if filter.ServiceType != "" {
		conds = append(conds, "service_type = ?")
		args = append(args, filter.ServiceType)
	}
	if filter.VehicleType != "" {
		conds = append(conds, "vehicle_type = ?")
		args = append(args, filter.VehicleType)
	}
	if filter.MinLat != nil && filter.MaxLat != nil {
		conds = append(conds, "latitude BETWEEN ? AND ?")
		args = append(args, *filter.MinLat, *filter.MaxLat)
	}
	if filter.MinLon != nil && filter.MaxLon != nil {
		conds = append(conds, "longitude BETWEEN ? AND ?")
		args = append(args, *filter.MinLon, *filter.MaxLon)
	}

	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at ASC, id ASC`
	return db.queryRequests(ctx, query, args...)
}

// ListRequests returns one page of requests, newest first, with the total count.
func (db *DB) ListRequests(ctx context.Context, filter models.ListFilter) ([]*models.ServiceRequest, int, error) {
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.EndUserID != nil {
		conds = append(conds, "end_user_id = ?")
		args = append(args, *filter.EndUserID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultPageSize
	}
	query := `SELECT ` + requestColumns + ` FROM service_requests` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	reqs, err := db.queryRequests(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

func (db *DB) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*models.ServiceRequest, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	reqs := []*models.ServiceRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return reqs, nil
}

// GetRequestStats counts requests per status and those assigned to mechanicID.
func (db *DB) GetRequestStats(ctx context.Context, mechanicID int64) (*models.RequestStats, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM service_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get request stats: %w", err)
	}
	defer rows.Close()

	stats := &models.RequestStats{ByStatus: make(map[string]int, len(lifecycle.Statuses))}
	for _, s := range lifecycle.Statuses {
		stats.ByStatus[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan request stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request stats: %w", err)
	}

	if mechanicID > 0 {
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM service_requests WHERE mechanic_id = ?`, mechanicID,
		).Scan(&stats.AssignedToMe)
		if err != nil {
			return nil, fmt.Errorf("failed to count assigned requests: %w", err)
		}
	}
	return stats, nil
}
