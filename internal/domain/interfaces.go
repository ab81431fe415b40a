package domain

import (
	"context"
	"time"

	"roadassist/internal/models"
)

// Repository is the persistence contract of the request engine.
// ClaimRequest and TransitionRequest must be atomic conditional updates.
type Repository interface {
	CreateRequest(ctx context.Context, req *models.ServiceRequest) error
	GetRequest(ctx context.Context, id int64) (*models.ServiceRequest, error)
	GetRequestByRequestID(ctx context.Context, requestID string) (*models.ServiceRequest, error)
	ClaimRequest(ctx context.Context, id, mechanicID int64, at time.Time) (*models.ServiceRequest, error)
	TransitionRequest(ctx context.Context, t models.Transition) (*models.ServiceRequest, error)
	ListOpenRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ServiceRequest, error)
	ListRequests(ctx context.Context, filter models.ListFilter) ([]*models.ServiceRequest, int, error)
	GetRequestStats(ctx context.Context, mechanicID int64) (*models.RequestStats, error)

	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateMechanicLocation(ctx context.Context, id int64, loc models.Location) (*models.User, error)

	GetActivityByRequestID(ctx context.Context, requestID string) ([]*models.ActivityLog, error)
}

// ActivityStore persists audit entries.
type ActivityStore interface {
	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
}

// ActivityStream mirrors audit entries to a live feed.
type ActivityStream interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
	Recent(ctx context.Context, limit int64) ([]*models.ActivityLog, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type RequestService interface {
	Create(ctx context.Context, caller models.Principal, in models.NewServiceRequest) (*models.ServiceRequest, error)
	GetDetails(ctx context.Context, ref string, caller models.Principal) (*models.ServiceRequest, error)
	GetHistory(ctx context.Context, ref string, caller models.Principal) ([]*models.ActivityLog, error)
	ListMine(ctx context.Context, caller models.Principal, status string, page, pageSize int) ([]*models.ServiceRequest, models.Pagination, error)
	Accept(ctx context.Context, ref string, caller models.Principal) (*models.ServiceRequest, error)
	Reject(ctx context.Context, ref string, caller models.Principal, reason string) (*models.ServiceRequest, error)
	UpdateStatus(ctx context.Context, ref string, caller models.Principal, target string, payload models.StatusPayload) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, ref string, caller models.Principal, reason string) (*models.ServiceRequest, error)
}

type DispatchService interface {
	ListAvailable(ctx context.Context, caller models.Principal, filter models.AvailableFilter, page, pageSize int) (*models.AvailablePage, error)
	ListVisible(ctx context.Context, caller models.Principal, status string, page, pageSize int) (*models.VisiblePage, error)
	ListForExport(ctx context.Context, caller models.Principal, status string) ([]*models.ServiceRequest, error)
}

type UserService interface {
	GetPrincipal(ctx context.Context, userID int64) (models.Principal, error)
	UpdateMechanicLocation(ctx context.Context, caller models.Principal, lat, lon float64, address string) (*models.User, error)
}
