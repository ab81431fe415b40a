package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPrincipal(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)

	p, err := f.users.GetPrincipal(ctx, mech.UserID)
	require.NoError(t, err)
	assert.Equal(t, mech, p)

	_, err = f.users.GetPrincipal(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.users.GetPrincipal(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateMechanicLocation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	mech := f.user(t, "mech@example.com", models.RoleMechanic, false, nil)
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)

	user, err := f.users.UpdateMechanicLocation(ctx, mech, 12.9716, 77.5946, "  MG Road ")
	require.NoError(t, err)
	require.True(t, user.HasLocation())
	assert.InDelta(t, 12.9716, *user.Latitude, 1e-9)
	assert.Equal(t, "MG Road", user.Address)

	require.Equal(t, []string{events.EventMechanicLocationUpdate}, f.eventTypes())
	var payload events.LocationEventPayload
	require.NoError(t, json.Unmarshal(f.received[0].Payload, &payload))
	assert.Equal(t, mech.UserID, payload.ActorID)

	_, err = f.users.UpdateMechanicLocation(ctx, mech, 91, 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.users.UpdateMechanicLocation(ctx, mech, math.NaN(), 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.users.UpdateMechanicLocation(ctx, owner, 1, 1, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	ghost := models.Principal{UserID: 4242, Role: models.RoleMechanic}
	_, err = f.users.UpdateMechanicLocation(ctx, ghost, 1, 1, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
