package repository

import (
	"context"
	"sync/atomic"
	"time"

	"roadassist/internal/domain"
	"roadassist/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverActivityStream writes to the primary stream and switches to the
// fallback while the primary is failing, probing it again after recoveryInterval.
type FailoverActivityStream struct {
	primary   domain.ActivityStream
	fallback  domain.ActivityStream
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverActivityStream(primary, fallback domain.ActivityStream, logger *zerolog.Logger) *FailoverActivityStream {
	return &FailoverActivityStream{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverActivityStream) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary activity stream failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverActivityStream) shouldProbe() bool {
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverActivityStream) Append(ctx context.Context, entry *models.ActivityLog) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.Append(ctx, entry)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("primary activity stream recovered")
			}
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Append(ctx, entry)
}

func (r *FailoverActivityStream) Recent(ctx context.Context, limit int64) ([]*models.ActivityLog, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		entries, err := r.primary.Recent(ctx, limit)
		if err == nil {
			r.isDown.Store(false)
			return entries, nil
		}
		r.markDown(err)
	}
	return r.fallback.Recent(ctx, limit)
}

// Degraded reports whether the fallback is currently serving.
func (r *FailoverActivityStream) Degraded() bool {
	return r.isDown.Load()
}
