package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"roadassist/internal/config"
	"roadassist/internal/database"
	"roadassist/internal/dispatch"
	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/geo"
	"roadassist/internal/lifecycle"
	"roadassist/internal/metrics"
	"roadassist/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxReasonLength = 1000

type RequestService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	cfg          config.DispatchConfig
	logger       *zerolog.Logger
	now          func() time.Time
	newRequestID func(time.Time) string
}

func NewRequestService(repo domain.Repository, eventBus domain.EventPublisher, cfg config.DispatchConfig, logger *zerolog.Logger) *RequestService {
	return &RequestService{
		repo:         repo,
		eventBus:     eventBus,
		cfg:          normalizeDispatchConfig(cfg),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newRequestID: NewRequestID,
	}
}

// NewRequestID builds a human-readable id like SR-20250401-9F86D081.
func NewRequestID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", models.RequestIDPrefix, at.UTC().Format("20060102"), suffix)
}

func (s *RequestService) Create(ctx context.Context, caller models.Principal, in models.NewServiceRequest) (*models.ServiceRequest, error) {
	if !caller.IsEndUser() {
		return nil, domain.Forbidden("only end users can create requests")
	}
	if !caller.Verified {
		return nil, domain.Forbidden("account is not verified")
	}

	req, err := s.validateNewRequest(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.RequestID = s.newRequestID(now)
	req.EndUserID = caller.UserID
	req.Status = models.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, storageError(err, "request not found")
	}

	s.logger.Info().
		Str("request_id", req.RequestID).
		Int64("end_user_id", caller.UserID).
		Str("service_type", req.ServiceType).
		Msg("request created")
	s.publishEvent(events.EventRequestCreated, req, caller, "", "", "")
	return req, nil
}

func (s *RequestService) validateNewRequest(in models.NewServiceRequest) (*models.ServiceRequest, error) {
	if strings.TrimSpace(in.ServiceType) == "" {
		return nil, domain.Validation("service_type is required")
	}
	serviceType, ok := lifecycle.ParseServiceType(in.ServiceType)
	if !ok {
		return nil, domain.Validation("unknown service_type %q", in.ServiceType)
	}
	vehicleType, ok := lifecycle.ParseVehicleType(in.VehicleType)
	if !ok {
		return nil, domain.Validation("unknown vehicle_type %q", in.VehicleType)
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, domain.Validation("description is required")
	}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return nil, domain.Validation("address is required")
	}
	if in.Latitude == nil || in.Longitude == nil {
		return nil, domain.Validation("latitude and longitude are required")
	}
	if !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return nil, domain.Validation("coordinates out of range: latitude must be within [-90,90], longitude within [-180,180]")
	}

	if len(in.Images) > models.MaxImagesPerRequest {
		return nil, domain.Validation("at most %d images are allowed", models.MaxImagesPerRequest)
	}
	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		img = strings.TrimSpace(img)
		if img == "" {
			return nil, domain.Validation("image reference must not be empty")
		}
		images = append(images, img)
	}

	return &models.ServiceRequest{
		ServiceType:   serviceType,
		VehicleType:   vehicleType,
		VehicleMake:   strings.TrimSpace(in.VehicleMake),
		VehicleModel:  strings.TrimSpace(in.VehicleModel),
		VehicleNumber: strings.ToUpper(strings.TrimSpace(in.VehicleNumber)),
		Description:   description,
		CustomerNotes: strings.TrimSpace(in.CustomerNotes),
		Latitude:      *in.Latitude,
		Longitude:     *in.Longitude,
		Address:       address,
		Images:        images,
	}, nil
}

// GetDetails returns a request to its owner, its assigned mechanic, or an admin.
func (s *RequestService) GetDetails(ctx context.Context, ref string, caller models.Principal) (*models.ServiceRequest, error) {
	req, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := canView(req, caller); err != nil {
		return nil, err
	}
	return req, nil
}

// GetHistory returns the activity trail of a request, oldest first.
func (s *RequestService) GetHistory(ctx context.Context, ref string, caller models.Principal) ([]*models.ActivityLog, error) {
	req, err := s.GetDetails(ctx, ref, caller)
	if err != nil {
		return nil, err
	}
	logs, err := s.repo.GetActivityByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, storageError(err, "request not found")
	}
	return logs, nil
}

func (s *RequestService) ListMine(ctx context.Context, caller models.Principal, status string, page, pageSize int) ([]*models.ServiceRequest, models.Pagination, error) {
	if !caller.IsEndUser() {
		return nil, models.Pagination{}, domain.Forbidden("only end users have own requests")
	}
	filter := models.ListFilter{EndUserID: &caller.UserID}
	if strings.TrimSpace(status) != "" {
		parsed, ok := lifecycle.ParseStatus(status)
		if !ok {
			return nil, models.Pagination{}, domain.Validation("unknown status %q", status)
		}
		filter.Status = parsed
	}

	page, pageSize = dispatch.Page(page, pageSize, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	reqs, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, storageError(err, "requests not found")
	}
	return reqs, models.NewPagination(page, pageSize, total), nil
}

// Accept claims a pending request for the calling mechanic. The claim is one
// conditional update; losers are classified from a fresh read and never retried.
func (s *RequestService) Accept(ctx context.Context, ref string, caller models.Principal) (*models.ServiceRequest, error) {
	if err := requireVerifiedMechanic(caller); err != nil {
		return nil, err
	}

	req, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending || req.MechanicID != nil {
		return nil, claimFailure(req, caller)
	}

	claimed, err := s.repo.ClaimRequest(ctx, req.ID, caller.UserID, s.now())
	if errors.Is(err, database.ErrConcurrentModification) {
		metrics.IncClaimConflict()
		current, loadErr := s.repo.GetRequest(ctx, req.ID)
		if loadErr != nil {
			return nil, storageError(loadErr, "request not found")
		}
		s.logger.Info().
			Str("request_id", req.RequestID).
			Int64("mechanic_id", caller.UserID).
			Str("status", current.Status).
			Msg("claim lost")
		return nil, claimFailure(current, caller)
	}
	if err != nil {
		return nil, storageError(err, "request not found")
	}

	s.logger.Info().
		Str("request_id", claimed.RequestID).
		Int64("mechanic_id", caller.UserID).
		Msg("request accepted")
	s.publishEvent(events.EventRequestAccepted, claimed, caller, models.StatusPending, "", "")
	return claimed, nil
}

func claimFailure(req *models.ServiceRequest, caller models.Principal) error {
	switch {
	case lifecycle.IsTerminal(req.Status):
		return domain.InvalidTransition("request %s is already %s", req.RequestID, req.Status)
	case req.IsAssignedTo(caller.UserID):
		return domain.InvalidTransition("request %s is already accepted by you", req.RequestID)
	case req.MechanicID != nil:
		return domain.ErrAlreadyClaimed
	default:
		return domain.InvalidTransition("request %s is %s and can no longer be accepted", req.RequestID, req.Status)
	}
}

// Reject declines a pending request, or hands back an accepted one held by the caller.
func (s *RequestService) Reject(ctx context.Context, ref string, caller models.Principal, reason string) (*models.ServiceRequest, error) {
	if err := requireVerifiedMechanic(caller); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, domain.Validation("reason must be at most %d characters", maxReasonLength)
	}

	req, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if lifecycle.IsTerminal(req.Status) {
		return nil, domain.InvalidTransition("request %s is already %s", req.RequestID, req.Status)
	}

	t := models.Transition{
		ID:              req.ID,
		FromStatus:      req.Status,
		ToStatus:        models.StatusRejected,
		At:              s.now(),
		RejectedBy:      &caller.UserID,
		RejectionReason: reason,
	}
	switch {
	case req.Status == models.StatusPending && lifecycle.Allows(req.Status, models.StatusRejected, lifecycle.TriggerMechanic):
	case req.Status == models.StatusAccepted:
		if !req.IsAssignedTo(caller.UserID) {
			return nil, domain.Forbidden("only the assigned mechanic can reject an accepted request")
		}
		t.ExpectMechanicID = req.MechanicID
		t.ClearMechanic = true
	default:
		return nil, domain.InvalidTransition("cannot reject a request in status %s", req.Status)
	}

	updated, err := s.repo.TransitionRequest(ctx, t)
	if err != nil {
		return nil, storageError(err, "request not found")
	}

	s.logger.Info().
		Str("request_id", updated.RequestID).
		Int64("mechanic_id", caller.UserID).
		Str("from", req.Status).
		Msg("request rejected")
	s.publishEvent(events.EventRequestRejected, updated, caller, req.Status, reason, "")
	return updated, nil
}

// UpdateStatus moves a request along the lifecycle. Accept, reject, and owner
// cancellation are routed to their dedicated operations.
func (s *RequestService) UpdateStatus(ctx context.Context, ref string, caller models.Principal, target string, payload models.StatusPayload) (*models.ServiceRequest, error) {
	to, ok := lifecycle.ParseStatus(target)
	if !ok {
		return nil, domain.Validation("unknown status %q", target)
	}
	if caller.IsAdmin() {
		return nil, domain.Forbidden("admins have read-only access")
	}

	notes := ""
	if payload.Notes != nil {
		notes = strings.TrimSpace(*payload.Notes)
	}
	if payload.Cost != nil && to != models.StatusCompleted {
		return nil, domain.Validation("cost can only be set when completing a request")
	}

	switch {
	case to == models.StatusAccepted:
		return s.Accept(ctx, ref, caller)
	case to == models.StatusRejected:
		return s.Reject(ctx, ref, caller, notes)
	case to == models.StatusCancelled && caller.IsEndUser():
		return s.Cancel(ctx, ref, caller, notes)
	}

	req, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if caller.IsEndUser() && req.EndUserID != caller.UserID {
		return nil, domain.ErrNotFound
	}
	if lifecycle.IsTerminal(req.Status) {
		return nil, domain.InvalidTransition("request %s is already %s", req.RequestID, req.Status)
	}
	if !caller.IsMechanic() {
		return nil, domain.Forbidden("only the assigned mechanic can set status %s", to)
	}
	return s.mechanicTransition(ctx, req, caller, to, notes, payload.Cost)
}

func (s *RequestService) mechanicTransition(ctx context.Context, req *models.ServiceRequest, caller models.Principal, to, notes string, cost *float64) (*models.ServiceRequest, error) {
	if !req.IsAssignedTo(caller.UserID) {
		return nil, domain.Forbidden("only the assigned mechanic can update this request")
	}
	if !lifecycle.Allows(req.Status, to, lifecycle.TriggerAssignedMechanic) {
		return nil, domain.InvalidTransition("cannot change status from %s to %s", req.Status, to)
	}

	t := models.Transition{
		ID:                  req.ID,
		FromStatus:          req.Status,
		ToStatus:            to,
		ExpectMechanicID:    req.MechanicID,
		At:                  s.now(),
		AppendMechanicNotes: notes,
	}
	if cost != nil {
		if math.IsNaN(*cost) || math.IsInf(*cost, 0) || *cost < 0 {
			return nil, domain.Validation("cost must be a non-negative number")
		}
		rounded := math.Round(*cost*100) / 100
		t.Cost = &rounded
	}

	updated, err := s.repo.TransitionRequest(ctx, t)
	if err != nil {
		return nil, storageError(err, "request not found")
	}

	s.logger.Info().
		Str("request_id", updated.RequestID).
		Int64("mechanic_id", caller.UserID).
		Str("from", req.Status).
		Str("to", to).
		Msg("request status updated")
	s.publishEvent(transitionEvent(to), updated, caller, req.Status, "", notes)
	return updated, nil
}

// Cancel cancels a request. End users may cancel their own pending or accepted
// requests; the assigned mechanic may cancel work in progress.
func (s *RequestService) Cancel(ctx context.Context, ref string, caller models.Principal, reason string) (*models.ServiceRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, domain.Validation("reason must be at most %d characters", maxReasonLength)
	}
	if caller.IsAdmin() {
		return nil, domain.Forbidden("admins have read-only access")
	}

	req, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if caller.IsMechanic() {
		if lifecycle.IsTerminal(req.Status) {
			return nil, domain.InvalidTransition("request %s is already %s", req.RequestID, req.Status)
		}
		return s.mechanicTransition(ctx, req, caller, models.StatusCancelled, reason, nil)
	}

	if !caller.IsEndUser() || req.EndUserID != caller.UserID {
		return nil, domain.ErrNotFound
	}
	if lifecycle.IsTerminal(req.Status) {
		return nil, domain.InvalidTransition("request %s is already %s", req.RequestID, req.Status)
	}
	if !lifecycle.Allows(req.Status, models.StatusCancelled, lifecycle.TriggerEndUser) {
		return nil, domain.InvalidTransition("a request in status %s can no longer be cancelled by the customer", req.Status)
	}

	note := "Cancelled by customer"
	if reason != "" {
		note += ": " + reason
	}
	updated, err := s.repo.TransitionRequest(ctx, models.Transition{
		ID:                  req.ID,
		FromStatus:          req.Status,
		ToStatus:            models.StatusCancelled,
		ExpectMechanicID:    req.MechanicID,
		At:                  s.now(),
		AppendCustomerNotes: note,
	})
	if err != nil {
		return nil, storageError(err, "request not found")
	}

	s.logger.Info().
		Str("request_id", updated.RequestID).
		Int64("end_user_id", caller.UserID).
		Str("from", req.Status).
		Msg("request cancelled")
	s.publishEvent(events.EventRequestCancelled, updated, caller, req.Status, reason, "")
	return updated, nil
}

// load re-reads a request by numeric id or by its SR-… reference.
func (s *RequestService) load(ctx context.Context, ref string) (*models.ServiceRequest, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.Validation("request id is required")
	}

	var (
		req *models.ServiceRequest
		err error
	)
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		req, err = s.repo.GetRequest(ctx, id)
	} else {
		req, err = s.repo.GetRequestByRequestID(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		return nil, storageError(err, "request not found")
	}
	return req, nil
}

func canView(req *models.ServiceRequest, caller models.Principal) error {
	switch {
	case caller.IsAdmin():
		return nil
	case caller.IsEndUser():
		if req.EndUserID == caller.UserID {
			return nil
		}
		return domain.ErrNotFound
	case caller.IsMechanic():
		if req.IsAssignedTo(caller.UserID) {
			return nil
		}
		return domain.Forbidden("request is not assigned to you")
	}
	return domain.Forbidden("unknown role %q", caller.Role)
}

func requireVerifiedMechanic(caller models.Principal) error {
	if !caller.IsMechanic() {
		return domain.Forbidden("only mechanics can perform this action")
	}
	if !caller.Verified {
		return domain.Forbidden("account is not verified")
	}
	return nil
}

func transitionEvent(to string) string {
	switch to {
	case models.StatusAccepted:
		return events.EventRequestAccepted
	case models.StatusInProgress:
		return events.EventRequestStarted
	case models.StatusCompleted:
		return events.EventRequestCompleted
	case models.StatusCancelled:
		return events.EventRequestCancelled
	case models.StatusRejected:
		return events.EventRequestRejected
	}
	return events.EventRequestStatusUpdated
}

// publishEvent runs after the write committed. Failures are logged and swallowed.
func (s *RequestService) publishEvent(eventType string, req *models.ServiceRequest, caller models.Principal, from, reason, notes string) {
	if s.eventBus == nil {
		return
	}

	payload := events.RequestEventPayload{
		ID:          req.ID,
		RequestID:   req.RequestID,
		ActorID:     caller.UserID,
		ActorRole:   caller.Role,
		EndUserID:   req.EndUserID,
		MechanicID:  req.MechanicID,
		FromStatus:  from,
		Status:      req.Status,
		ServiceType: req.ServiceType,
		Reason:      reason,
		Notes:       notes,
		Cost:        req.Cost,
		OccurredAt:  req.UpdatedAt,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Str("request_id", req.RequestID).Msg("publish event error")
	}
}

func normalizeDispatchConfig(cfg config.DispatchConfig) config.DispatchConfig {
	if cfg.DefaultMaxDistanceKm <= 0 {
		cfg.DefaultMaxDistanceKm = models.DefaultMaxDistanceKm
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = models.MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = models.DefaultPageSize
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	return cfg
}
