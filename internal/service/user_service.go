package service

import (
	"context"
	"strings"
	"time"

	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/geo"
	"roadassist/internal/models"

	"github.com/rs/zerolog"
)

const maxAddressLength = 500

type UserService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewUserService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// GetPrincipal resolves an authenticated user id into the identity the core works with.
func (s *UserService) GetPrincipal(ctx context.Context, userID int64) (models.Principal, error) {
	if userID <= 0 {
		return models.Principal{}, domain.NotFound("user not found")
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return models.Principal{}, storageError(err, "user not found")
	}
	return user.Principal(), nil
}

func (s *UserService) UpdateMechanicLocation(ctx context.Context, caller models.Principal, lat, lon float64, address string) (*models.User, error) {
	if !caller.IsMechanic() {
		return nil, domain.Forbidden("only mechanics have a service location")
	}
	if !geo.ValidCoordinates(lat, lon) {
		return nil, domain.Validation("coordinates out of range: latitude must be within [-90,90], longitude within [-180,180]")
	}
	address = strings.TrimSpace(address)
	if len(address) > maxAddressLength {
		return nil, domain.Validation("address must be at most %d characters", maxAddressLength)
	}

	user, err := s.repo.UpdateMechanicLocation(ctx, caller.UserID, models.Location{
		Latitude:  lat,
		Longitude: lon,
		Address:   address,
	})
	if err != nil {
		return nil, storageError(err, "mechanic not found")
	}

	s.logger.Debug().Int64("mechanic_id", caller.UserID).Msg("mechanic location updated")
	if s.eventBus != nil {
		payload := events.LocationEventPayload{
			ActorID:    caller.UserID,
			Latitude:   lat,
			Longitude:  lon,
			Address:    address,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.eventBus.PublishJSON(events.EventMechanicLocationUpdate, payload); err != nil {
			s.logger.Warn().Err(err).Int64("mechanic_id", caller.UserID).Msg("publish event error")
		}
	}
	return user, nil
}
