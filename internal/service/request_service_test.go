package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ domain.RequestService  = (*RequestService)(nil)
	_ domain.DispatchService = (*DispatchService)(nil)
	_ domain.UserService     = (*UserService)(nil)
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID(mustTime(t, "2025-04-01T10:00:00Z"))
	assert.Regexp(t, regexp.MustCompile(`^SR-20250401-[0-9A-F]{8}$`), id)
	assert.NotEqual(t, id, NewRequestID(mustTime(t, "2025-04-01T10:00:00Z")))
}

func TestCreate(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)

	t.Run("defaults and normalisation", func(t *testing.T) {
		req := f.create(t, owner, 19.076, 72.8777)
		assert.Equal(t, models.StatusPending, req.Status)
		assert.Equal(t, models.ServiceFlatTire, req.ServiceType)
		assert.Equal(t, models.VehicleCar, req.VehicleType)
		assert.Equal(t, owner.UserID, req.EndUserID)
		assert.Nil(t, req.MechanicID)
		assert.True(t, strings.HasPrefix(req.RequestID, "SR-"))

		stored, err := f.requests.GetDetails(ctx, req.RequestID, owner)
		require.NoError(t, err)
		assert.InDelta(t, 19.076, stored.Latitude, 1e-6)
		assert.InDelta(t, 72.8777, stored.Longitude, 1e-6)
		assert.Equal(t, []string{"uploads/1.jpg"}, stored.Images)
		assert.Contains(t, f.eventTypes(), events.EventRequestCreated)
	})

	t.Run("validation", func(t *testing.T) {
		cases := map[string]func(in *models.NewServiceRequest){
			"missing service type": func(in *models.NewServiceRequest) { in.ServiceType = " " },
			"unknown service type": func(in *models.NewServiceRequest) { in.ServiceType = "teleport" },
			"unknown vehicle type": func(in *models.NewServiceRequest) { in.VehicleType = "spaceship" },
			"missing description":  func(in *models.NewServiceRequest) { in.Description = "" },
			"missing address":      func(in *models.NewServiceRequest) { in.Address = "  " },
			"missing latitude":     func(in *models.NewServiceRequest) { in.Latitude = nil },
			"latitude range":       func(in *models.NewServiceRequest) { in.Latitude = ptr(90.5) },
			"longitude range":      func(in *models.NewServiceRequest) { in.Longitude = ptr(-180.1) },
			"too many images":      func(in *models.NewServiceRequest) { in.Images = make([]string, 6) },
			"empty image":          func(in *models.NewServiceRequest) { in.Images = []string{""} },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				in := newRequestInput(1, 1)
				mutate(&in)
				_, err := f.requests.Create(ctx, owner, in)
				assert.ErrorIs(t, err, domain.ErrValidation)
			})
		}
	})

	t.Run("forbidden callers", func(t *testing.T) {
		unverified := f.user(t, "new@example.com", models.RoleEndUser, false, nil)
		mechanic := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)

		_, err := f.requests.Create(ctx, unverified, newRequestInput(1, 1))
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = f.requests.Create(ctx, mechanic, newRequestInput(1, 1))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestAcceptScenarios(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	m1 := f.user(t, "m1@example.com", models.RoleMechanic, true, &models.Location{})
	m2 := f.user(t, "m2@example.com", models.RoleMechanic, true, &models.Location{})

	req := f.create(t, owner, 0, 0)

	accepted, err := f.requests.Accept(ctx, req.RequestID, m1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.MechanicID)
	assert.Equal(t, m1.UserID, *accepted.MechanicID)
	assert.NotNil(t, accepted.AcceptedAt)

	_, err = f.requests.Accept(ctx, req.RequestID, m2)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = f.requests.Accept(ctx, req.RequestID, m1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := f.requests.GetDetails(ctx, fmt.Sprint(req.ID), owner)
	require.NoError(t, err)
	assert.Equal(t, m1.UserID, *current.MechanicID)

	t.Run("role checks", func(t *testing.T) {
		other := f.create(t, owner, 0, 0)
		unverified := f.user(t, "m3@example.com", models.RoleMechanic, false, nil)
		admin := f.user(t, "admin@example.com", models.RoleAdmin, true, nil)

		_, err := f.requests.Accept(ctx, other.RequestID, unverified)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = f.requests.Accept(ctx, other.RequestID, admin)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = f.requests.Accept(ctx, other.RequestID, owner)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.requests.Accept(ctx, "SR-19700101-00000000", m2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = f.requests.Accept(ctx, "", m2)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestConcurrentAccept(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	req := f.create(t, owner, 12.97, 77.59)

	const n = 10
	mechanics := make([]models.Principal, n)
	for i := range mechanics {
		mechanics[i] = f.user(t, fmt.Sprintf("m%d@example.com", i), models.RoleMechanic, true, nil)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []int64
		claimed   int
		other     []error
	)
	start := make(chan struct{})
	for _, m := range mechanics {
		wg.Add(1)
		go func(m models.Principal) {
			defer wg.Done()
			<-start
			got, err := f.requests.Accept(ctx, req.RequestID, m)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes = append(successes, *got.MechanicID)
			case domain.KindOf(err) == domain.KindAlreadyClaimed:
				claimed++
			default:
				other = append(other, err)
			}
		}(m)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, successes, 1)
	assert.Equal(t, n-1, claimed)

	stored, err := f.db.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Equal(t, successes[0], *stored.MechanicID)
}

func TestLifecycleToCompletion(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)
	stranger := f.user(t, "stranger@example.com", models.RoleMechanic, true, nil)

	req := f.create(t, owner, 1, 1)
	_, err := f.requests.Accept(ctx, req.RequestID, mech)
	require.NoError(t, err)

	_, err = f.requests.UpdateStatus(ctx, req.RequestID, stranger, "in progress", models.StatusPayload{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusCompleted, models.StatusPayload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "cannot skip IN_PROGRESS")

	_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusInProgress, models.StatusPayload{Cost: ptr(10.0)})
	assert.ErrorIs(t, err, domain.ErrValidation, "cost only on completion")

	started, err := f.requests.UpdateStatus(ctx, req.RequestID, mech, "in-progress", models.StatusPayload{Notes: ptr("on site")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.NotNil(t, started.StartedAt)
	assert.Equal(t, "on site", started.MechanicNotes)

	_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusCompleted, models.StatusPayload{Cost: ptr(-5.0)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	done, err := f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusCompleted,
		models.StatusPayload{Cost: ptr(100.0), Notes: ptr("tire replaced")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.Cost)
	assert.Equal(t, 100.0, *done.Cost)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "on site\ntire replaced", done.MechanicNotes)
	assert.Equal(t, mech.UserID, *done.MechanicID)

	t.Run("terminal state rejects everything", func(t *testing.T) {
		_, err := f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusInProgress, models.StatusPayload{})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusCancelled, models.StatusPayload{})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.requests.Cancel(ctx, req.RequestID, owner, "too late")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.requests.Reject(ctx, req.RequestID, mech, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.requests.Accept(ctx, req.RequestID, stranger)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.requests.Accept(ctx, req.RequestID, mech)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	assert.Equal(t, []string{
		events.EventRequestCreated,
		events.EventRequestAccepted,
		events.EventRequestStarted,
		events.EventRequestCompleted,
	}, f.eventTypes())
}

func TestAcceptCancelledAfterClaim(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	m1 := f.user(t, "m1@example.com", models.RoleMechanic, true, nil)
	m2 := f.user(t, "m2@example.com", models.RoleMechanic, true, nil)

	req := f.create(t, owner, 1, 1)
	_, err := f.requests.Accept(ctx, req.RequestID, m1)
	require.NoError(t, err)
	cancelled, err := f.requests.Cancel(ctx, req.RequestID, owner, "found help")
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.MechanicID)

	_, err = f.requests.Accept(ctx, req.RequestID, m2)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrAlreadyClaimed)
	_, err = f.requests.Accept(ctx, req.RequestID, m1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCostRounding(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)

	req := f.create(t, owner, 1, 1)
	_, err := f.requests.Accept(ctx, req.RequestID, mech)
	require.NoError(t, err)
	_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusInProgress, models.StatusPayload{})
	require.NoError(t, err)

	done, err := f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusCompleted, models.StatusPayload{Cost: ptr(49.999)})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, *done.Cost, 1e-9)
}

func TestCancel(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	other := f.user(t, "other@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)

	t.Run("pending", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)

		_, err := f.requests.Cancel(ctx, req.RequestID, other, "")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		cancelled, err := f.requests.Cancel(ctx, req.RequestID, owner, "found a friend")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
		assert.Nil(t, cancelled.MechanicID)
		assert.Equal(t, "Cancelled by customer: found a friend", cancelled.CustomerNotes)
	})

	t.Run("accepted keeps mechanic", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.Accept(ctx, req.RequestID, mech)
		require.NoError(t, err)

		_, err = f.requests.Cancel(ctx, req.RequestID, mech, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "mechanic cannot cancel before starting")

		cancelled, err := f.requests.UpdateStatus(ctx, req.RequestID, owner, "canceled", models.StatusPayload{})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.Equal(t, "Cancelled by customer", cancelled.CustomerNotes)
		require.NotNil(t, cancelled.MechanicID)
		assert.Equal(t, mech.UserID, *cancelled.MechanicID)
	})

	t.Run("in progress by customer fails, by mechanic succeeds", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.Accept(ctx, req.RequestID, mech)
		require.NoError(t, err)
		_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusInProgress, models.StatusPayload{})
		require.NoError(t, err)

		_, err = f.requests.Cancel(ctx, req.RequestID, owner, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		cancelled, err := f.requests.Cancel(ctx, req.RequestID, mech, "parts unavailable")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.Equal(t, "parts unavailable", cancelled.MechanicNotes)
	})

	t.Run("end user cannot drive mechanic transitions", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.UpdateStatus(ctx, req.RequestID, owner, models.StatusInProgress, models.StatusPayload{})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = f.requests.UpdateStatus(ctx, req.RequestID, other, models.StatusInProgress, models.StatusPayload{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestReject(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)
	other := f.user(t, "other@example.com", models.RoleMechanic, true, nil)

	t.Run("pending", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		rejected, err := f.requests.Reject(ctx, req.RequestID, mech, "too far")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Nil(t, rejected.MechanicID)
		assert.Equal(t, "too far", rejected.RejectionReason)
		require.NotNil(t, rejected.RejectedBy)
		assert.Equal(t, mech.UserID, *rejected.RejectedBy)
	})

	t.Run("accepted by assigned mechanic only", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.Accept(ctx, req.RequestID, mech)
		require.NoError(t, err)

		_, err = f.requests.Reject(ctx, req.RequestID, other, "")
		assert.ErrorIs(t, err, domain.ErrForbidden)

		rejected, err := f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusRejected, models.StatusPayload{Notes: ptr("emergency")})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Nil(t, rejected.MechanicID)
		assert.Equal(t, "emergency", rejected.RejectionReason)
	})

	t.Run("in progress cannot be rejected", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.Accept(ctx, req.RequestID, mech)
		require.NoError(t, err)
		_, err = f.requests.UpdateStatus(ctx, req.RequestID, mech, models.StatusInProgress, models.StatusPayload{})
		require.NoError(t, err)

		_, err = f.requests.Reject(ctx, req.RequestID, mech, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("reason length", func(t *testing.T) {
		req := f.create(t, owner, 1, 1)
		_, err := f.requests.Reject(ctx, req.RequestID, mech, strings.Repeat("x", maxReasonLength+1))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestUpdateStatusInput(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, true, nil)
	req := f.create(t, owner, 1, 1)

	_, err := f.requests.UpdateStatus(ctx, req.RequestID, owner, "sleeping", models.StatusPayload{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.requests.UpdateStatus(ctx, req.RequestID, admin, models.StatusCancelled, models.StatusPayload{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.requests.Cancel(ctx, req.RequestID, admin, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestVisibility(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	other := f.user(t, "other@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)
	stranger := f.user(t, "stranger@example.com", models.RoleMechanic, true, nil)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, true, nil)

	req := f.create(t, owner, 1, 1)
	_, err := f.requests.Accept(ctx, req.RequestID, mech)
	require.NoError(t, err)

	for _, caller := range []models.Principal{owner, mech, admin} {
		got, err := f.requests.GetDetails(ctx, strings.ToLower(req.RequestID), caller)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
	}

	_, err = f.requests.GetDetails(ctx, req.RequestID, other)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.requests.GetDetails(ctx, req.RequestID, stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	t.Run("history", func(t *testing.T) {
		for _, e := range []struct {
			action string
			user   int64
		}{{events.EventRequestCreated, owner.UserID}, {events.EventRequestAccepted, mech.UserID}} {
			require.NoError(t, f.db.CreateActivityLog(ctx, &models.ActivityLog{
				UserID: e.user, Action: e.action, RequestID: req.RequestID, Details: []byte(`{}`),
			}))
		}

		logs, err := f.requests.GetHistory(ctx, req.RequestID, owner)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, events.EventRequestCreated, logs[0].Action)

		_, err = f.requests.GetHistory(ctx, req.RequestID, other)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListMine(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleEndUser, true, nil)
	other := f.user(t, "other@example.com", models.RoleEndUser, true, nil)
	mech := f.user(t, "mech@example.com", models.RoleMechanic, true, nil)

	for i := 0; i < 3; i++ {
		f.create(t, owner, 1, 1)
	}
	f.create(t, other, 1, 1)
	first := f.create(t, owner, 1, 1)
	_, err := f.requests.Cancel(ctx, first.RequestID, owner, "")
	require.NoError(t, err)

	items, page, err := f.requests.ListMine(ctx, owner, "", 1, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)
	for _, it := range items {
		assert.Equal(t, owner.UserID, it.EndUserID)
	}

	items, page, err = f.requests.ListMine(ctx, owner, "cancelled", 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.Total)

	_, _, err = f.requests.ListMine(ctx, owner, "bogus", 1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.requests.ListMine(ctx, mech, "", 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
