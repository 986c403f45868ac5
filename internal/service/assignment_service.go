package service

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"
	"delivery-settlement/pkg/geo"

	"github.com/rs/zerolog"
)

// AssignmentServiceImpl implements ports.AssignmentService. It reads a
// possibly stale driver snapshot; the assignment write is where races are
// settled.
type AssignmentServiceImpl struct {
	driverRepo ports.DriverRepository
	log        zerolog.Logger
}

// NewAssignmentService creates a new AssignmentServiceImpl.
func NewAssignmentService(driverRepo ports.DriverRepository, log zerolog.Logger) *AssignmentServiceImpl {
	return &AssignmentServiceImpl{driverRepo: driverRepo, log: log}
}

// Rank scores every assignable driver against the pickup point.
func (s *AssignmentServiceImpl) Rank(ctx context.Context, lat, lng float64) ([]domain.DriverCandidate, error) {
	if !geo.ValidCoordinates(lat, lng) {
		return nil, apperror.Validation("invalid pickup coordinates")
	}

	drivers, err := s.driverRepo.ListAssignable(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list assignable drivers: %w", err))
	}

	ranked := domain.RankCandidates(drivers, lat, lng)
	s.log.Debug().
		Float64("lat", lat).
		Float64("lng", lng).
		Int("candidates", len(ranked)).
		Msg("drivers ranked")
	return ranked, nil
}

// UpdateLocation records the calling driver's position.
func (s *AssignmentServiceImpl) UpdateLocation(ctx context.Context, actor domain.Actor, lat, lng float64) error {
	if actor.Role != domain.RoleDriver {
		return apperror.ErrForbidden()
	}
	if !geo.ValidCoordinates(lat, lng) {
		return apperror.Validation("invalid coordinates")
	}
	driver, err := s.driverRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get driver: %w", err))
	}
	if driver == nil {
		return apperror.ErrNotFound("driver")
	}
	if err := s.driverRepo.UpdateLocation(ctx, actor.ID, lat, lng); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}
