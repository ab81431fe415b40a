package service

import (
	"context"
	"math"
	"strings"

	"roadassist/internal/config"
	"roadassist/internal/dispatch"
	"roadassist/internal/domain"
	"roadassist/internal/geo"
	"roadassist/internal/lifecycle"
	"roadassist/internal/models"

	"github.com/rs/zerolog"
)

// DispatchService surfaces open requests to mechanics.
type DispatchService struct {
	repo   domain.Repository
	cfg    config.DispatchConfig
	logger *zerolog.Logger
}

func NewDispatchService(repo domain.Repository, cfg config.DispatchConfig, logger *zerolog.Logger) *DispatchService {
	return &DispatchService{
		repo:   repo,
		cfg:    normalizeDispatchConfig(cfg),
		logger: logger,
	}
}

// ListAvailable returns open requests within range of the mechanic's stored
// location, nearest first.
func (s *DispatchService) ListAvailable(ctx context.Context, caller models.Principal, filter models.AvailableFilter, page, pageSize int) (*models.AvailablePage, error) {
	if !caller.IsMechanic() {
		return nil, domain.Forbidden("only mechanics can browse available requests")
	}

	maxKm := s.cfg.DefaultMaxDistanceKm
	if filter.MaxDistanceKm != nil {
		maxKm = *filter.MaxDistanceKm
		if math.IsNaN(maxKm) || math.IsInf(maxKm, 0) || maxKm <= 0 {
			return nil, domain.Validation("max_distance_km must be a positive number")
		}
	}

	query := models.RequestFilter{}
	if strings.TrimSpace(filter.ServiceType) != "" {
		st, ok := lifecycle.ParseServiceType(filter.ServiceType)
		if !ok {
			return nil, domain.Validation("unknown service_type %q", filter.ServiceType)
		}
		query.ServiceType = st
	}
	if strings.TrimSpace(filter.VehicleType) != "" {
		vt, ok := lifecycle.ParseVehicleType(filter.VehicleType)
		if !ok {
			return nil, domain.Validation("unknown vehicle_type %q", filter.VehicleType)
		}
		query.VehicleType = vt
	}

	mechanic, err := s.repo.GetUserByID(ctx, caller.UserID)
	if err != nil {
		return nil, storageError(err, "user not found")
	}
	if !mechanic.HasLocation() {
		return nil, domain.ErrMissingMechanicLocation
	}
	origin := models.Location{
		Latitude:  *mechanic.Latitude,
		Longitude: *mechanic.Longitude,
		Address:   mechanic.Address,
	}

	if box, ok := geo.BoundingBoxAround(origin.Latitude, origin.Longitude, maxKm); ok {
		query.MinLat, query.MaxLat = &box.MinLat, &box.MaxLat
		query.MinLon, query.MaxLon = &box.MinLon, &box.MaxLon
	}

	candidates, err := s.repo.ListOpenRequests(ctx, query)
	if err != nil {
		return nil, storageError(err, "requests not found")
	}

	ranked := dispatch.Rank(origin, candidates, maxKm)
	page, pageSize = dispatch.Page(page, pageSize, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	items, pagination := dispatch.Paginate(ranked, page, pageSize)

	s.logger.Debug().
		Int64("mechanic_id", caller.UserID).
		Int("candidates", len(candidates)).
		Int("in_range", len(ranked)).
		Float64("max_distance_km", maxKm).
		Msg("available requests listed")

	return &models.AvailablePage{
		Requests:         items,
		Pagination:       pagination,
		MechanicLocation: origin,
		MaxDistanceKm:    maxKm,
	}, nil
}

// ListVisible returns every request, newest first, flagged against the caller.
func (s *DispatchService) ListVisible(ctx context.Context, caller models.Principal, status string, page, pageSize int) (*models.VisiblePage, error) {
	if !caller.IsMechanic() && !caller.IsAdmin() {
		return nil, domain.Forbidden("only mechanics and admins can list all requests")
	}

	filter := models.ListFilter{}
	if strings.TrimSpace(status) != "" {
		parsed, ok := lifecycle.ParseStatus(status)
		if !ok {
			return nil, domain.Validation("unknown status %q", status)
		}
		filter.Status = parsed
	}
	page, pageSize = dispatch.Page(page, pageSize, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	user, err := s.repo.GetUserByID(ctx, caller.UserID)
	if err != nil {
		return nil, storageError(err, "user not found")
	}

	reqs, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, storageError(err, "requests not found")
	}

	var mechanicID int64
	if caller.IsMechanic() {
		mechanicID = caller.UserID
	}
	stats, err := s.repo.GetRequestStats(ctx, mechanicID)
	if err != nil {
		return nil, storageError(err, "requests not found")
	}

	items := make([]*models.VisibleRequest, 0, len(reqs))
	for _, r := range reqs {
		item := &models.VisibleRequest{
			ServiceRequest: *r,
			IsAssignedToMe: r.IsAssignedTo(caller.UserID),
		}
		if user.HasLocation() {
			d := geo.RoundKm(geo.DistanceKm(*user.Latitude, *user.Longitude, r.Latitude, r.Longitude))
			item.DistanceKm = &d
		}
		items = append(items, item)
	}

	return &models.VisiblePage{
		Requests:   items,
		Pagination: models.NewPagination(page, pageSize, total),
		Stats:      stats,
	}, nil
}

const (
	exportBatchSize = 500
	maxExportRows   = 50000
)

// ListForExport returns every request matching status, newest first, for the
// admin spreadsheet export.
func (s *DispatchService) ListForExport(ctx context.Context, caller models.Principal, status string) ([]*models.ServiceRequest, error) {
	if !caller.IsAdmin() {
		return nil, domain.Forbidden("only admins can export requests")
	}

	filter := models.ListFilter{Limit: exportBatchSize}
	if strings.TrimSpace(status) != "" {
		parsed, ok := lifecycle.ParseStatus(status)
		if !ok {
			return nil, domain.Validation("unknown status %q", status)
		}
		filter.Status = parsed
	}

	var out []*models.ServiceRequest
	for len(out) < maxExportRows {
		batch, total, err := s.repo.ListRequests(ctx, filter)
		if err != nil {
			return nil, storageError(err, "requests not found")
		}
		out = append(out, batch...)
		filter.Offset += len(batch)
		if len(batch) < filter.Limit || filter.Offset >= total {
			break
		}
	}
	if len(out) > maxExportRows {
		s.logger.Warn().Int("rows", len(out)).Msg("export truncated")
		out = out[:maxExportRows]
	}
	return out, nil
}
