package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roadassist/internal/config"
	"roadassist/internal/database"
	"roadassist/internal/events"
	"roadassist/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *database.DB
	bus      *events.EventBus
	requests *RequestService
	dispatch *DispatchService
	users    *UserService

	mu       sync.Mutex
	received []*events.Event
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, bus: events.NewEventBus()}
	types := append([]string{events.EventMechanicLocationUpdate}, events.RequestEvents...)
	f.bus.Subscribe(func(e *events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.received = append(f.received, e)
		return nil
	}, types...)

	cfg := config.DispatchConfig{DefaultMaxDistanceKm: 50, DefaultPageSize: 10, MaxPageSize: 100}
	f.requests = NewRequestService(db, f.bus, cfg, &logger)
	f.dispatch = NewDispatchService(db, cfg, &logger)
	f.users = NewUserService(db, f.bus, &logger)
	return f
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, ":memory:")
}

func newFileFixture(t *testing.T) *fixture {
	return newFixture(t, filepath.Join(t.TempDir(), "roadassist.db"))
}

func (f *fixture) user(t *testing.T, email, role string, verified bool, loc *models.Location) models.Principal {
	t.Helper()
	u := &models.User{Email: email, Name: email, Role: role, IsVerified: verified}
	if loc != nil {
		u.Latitude, u.Longitude, u.Address = &loc.Latitude, &loc.Longitude, loc.Address
	}
	require.NoError(t, f.db.CreateOrUpdateUser(context.Background(), u))
	return u.Principal()
}

func (f *fixture) create(t *testing.T, owner models.Principal, lat, lon float64) *models.ServiceRequest {
	t.Helper()
	req, err := f.requests.Create(context.Background(), owner, newRequestInput(lat, lon))
	require.NoError(t, err)
	return req
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, e := range f.received {
		out = append(out, e.Type)
	}
	return out
}

func newRequestInput(lat, lon float64) models.NewServiceRequest {
	return models.NewServiceRequest{
		ServiceType:  "flat tire",
		VehicleMake:  "Toyota",
		VehicleModel: "Corolla",
		Description:  "rear left tire is flat",
		Latitude:     &lat,
		Longitude:    &lon,
		Address:      "Western Express Highway",
		Images:       []string{"uploads/1.jpg"},
	}
}

func ptr[T any](v T) *T { return &v }

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
