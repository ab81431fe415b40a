package models

import "time"

// Transition is a compare-and-set status change. It applies only while the row
// still has FromStatus and the observed mechanic (nil means unassigned).
type Transition struct {
	ID               int64
	FromStatus       string
	ToStatus         string
	ExpectMechanicID *int64
	At               time.Time

	ClearMechanic       bool
	RejectedBy          *int64
	RejectionReason     string
	AppendMechanicNotes string
	AppendCustomerNotes string
	Cost                *float64
}

// StatusPayload carries optional data attached to a status update.
type StatusPayload struct {
	Notes *string
	Cost  *float64
}

// AvailableFilter narrows the nearby-request search.
type AvailableFilter struct {
	ServiceType   string
	VehicleType   string
	MaxDistanceKm *float64
}

type AvailablePage struct {
	Requests         []*RequestMatch `json:"requests"`
	Pagination       Pagination      `json:"pagination"`
	MechanicLocation Location        `json:"mechanic_location"`
	MaxDistanceKm    float64         `json:"max_distance_km"`
}

type VisiblePage struct {
	Requests   []*VisibleRequest `json:"requests"`
	Pagination Pagination        `json:"pagination"`
	Stats      *RequestStats     `json:"stats"`
}
