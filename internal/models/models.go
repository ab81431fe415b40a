package models

import (
	"encoding/json"
	"time"
)

// Location is a point with an optional address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type RequestMatch struct {
	ServiceRequest
	DistanceKm             float64 `json:"distance_km"`
	EstimatedTravelMinutes int     `json:"estimated_travel_minutes"`
}

type VisibleRequest struct {
	ServiceRequest
	DistanceKm     *float64 `json:"distance_km,omitempty"`
	IsAssignedToMe bool     `json:"is_assigned_to_me"`
}

type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination fills derived fields for a page of total items.
func NewPagination(page, pageSize, total int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

type RequestStats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	AssignedToMe int            `json:"assigned_to_me"`
}

type ActivityLog struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
