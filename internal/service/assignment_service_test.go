package service

import (
	"context"
	"errors"
	"testing"

	"delivery-settlement/internal/core/ports/mocks"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAssignmentService_Rank(t *testing.T) {
	env := newTestEnv(t)
	near := env.addDriver(t, hcmLat+0.009, hcmLng, 4.0, 10)
	far := env.addDriver(t, hcmLat+0.09, hcmLng, 5.0, 50)
	busy := env.addDriver(t, hcmLat, hcmLng, 5.0, 50)

	d := env.driver(t, busy)
	d.IsAvailable = false
	require.NoError(t, env.drivers.UpdateState(context.Background(), nil, d))

	ranked, err := env.assignment.Rank(context.Background(), hcmLat, hcmLng)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, near, ranked[0].DriverID)
	assert.InDelta(t, 1.0, ranked[0].DistanceKm, 0.01)
	assert.InDelta(t, 71.0, ranked[0].Score, 0.1)

	// Past 10 km the distance term is zero.
	assert.Equal(t, far, ranked[1].DriverID)
	assert.InDelta(t, 40.0, ranked[1].Score, 0.001)
}

func TestAssignmentService_Rank_InvalidCoordinates(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.assignment.Rank(context.Background(), 91, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = env.assignment.Rank(context.Background(), 0, -181)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestAssignmentService_Rank_NoDrivers(t *testing.T) {
	env := newTestEnv(t)

	ranked, err := env.assignment.Rank(context.Background(), hcmLat, hcmLng)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestAssignmentService_Rank_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockDriverRepository(ctrl)
	repo.EXPECT().ListAssignable(gomock.Any()).Return(nil, errors.New("connection reset"))

	svc := NewAssignmentService(repo, newTestLogger())
	_, err := svc.Rank(context.Background(), hcmLat, hcmLng)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}

func TestAssignmentService_UpdateLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driverID := env.addDriver(t, hcmLat, hcmLng, 4.5, 3)

	require.NoError(t, env.assignment.UpdateLocation(ctx, driverActor(driverID), 10.8, 106.7))
	d := env.driver(t, driverID)
	assert.InDelta(t, 10.8, *d.Lat, 1e-9)
	assert.InDelta(t, 106.7, *d.Lng, 1e-9)

	err := env.assignment.UpdateLocation(ctx, driverActor(driverID), 100, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	err = env.assignment.UpdateLocation(ctx, customer(), 10.8, 106.7)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	err = env.assignment.UpdateLocation(ctx, driverActor(uuid.New()), 10.8, 106.7)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}
