package service

import (
	"errors"

	"roadassist/internal/database"
	"roadassist/internal/domain"
)

// storageError maps repository failures onto typed engine errors.
func storageError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFound("%s", msg)
	case errors.Is(err, database.ErrConcurrentModification):
		return domain.InvalidTransition("request was modified concurrently")
	}
	var typed *domain.Error
	if errors.As(err, &typed) {
		return err
	}
	return domain.Dependency("storage unavailable", err)
}
