package models

import "time"

type ServiceRequest struct {
	ID              int64      `json:"id"`
	RequestID       string     `json:"request_id"`
	EndUserID       int64      `json:"end_user_id"`
	MechanicID      *int64     `json:"mechanic_id,omitempty"`
	ServiceType     string     `json:"service_type"`
	VehicleType     string     `json:"vehicle_type"`
	VehicleMake     string     `json:"vehicle_make"`
	VehicleModel    string     `json:"vehicle_model"`
	VehicleNumber   string     `json:"vehicle_number,omitempty"`
	Description     string     `json:"description"`
	CustomerNotes   string     `json:"customer_notes,omitempty"`
	MechanicNotes   string     `json:"mechanic_notes,omitempty"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	Address         string     `json:"address"`
	Images          []string   `json:"images"`
	Cost            *float64   `json:"cost,omitempty"`
	Status          string     `json:"status"` // PENDING, ACCEPTED, IN_PROGRESS, COMPLETED, CANCELLED, REJECTED
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectedBy      *int64     `json:"rejected_by,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsAssignedTo reports whether mechanicID currently holds the request.
func (r *ServiceRequest) IsAssignedTo(mechanicID int64) bool {
	return r.MechanicID != nil && *r.MechanicID == mechanicID
}

// NewServiceRequest is the validated input for creating a request.
type NewServiceRequest struct {
	ServiceType   string
	VehicleType   string
	VehicleMake   string
	VehicleModel  string
	VehicleNumber string
	Description   string
	CustomerNotes string
	Latitude      *float64
	Longitude     *float64
	Address       string
	Images        []string
}

// RequestFilter selects open requests for the matcher.
type RequestFilter struct {
	ServiceType string
	VehicleType string
	// Optional coarse prefilter; nil means no box.
	MinLat, MaxLat, MinLon, MaxLon *float64
}

// ListFilter selects requests for paged listings.
type ListFilter struct {
	Status    string
	EndUserID *int64
	Limit     int
	Offset    int
}
