package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

// ResolveRequirements scales per-student requirements by the participant count. Counts below one count as one.
func ResolveRequirements(requirements []models.ResourceRequirement, participants int) []models.ResourceQuantity {
	if participants < 1 {
		participants = 1
	}
	out := make([]models.ResourceQuantity, 0, len(requirements))
	for _, req := range requirements {
		if req.QuantityPerStudent <= 0 {
			continue
		}
		out = append(out, models.ResourceQuantity{
			ResourceID: req.ResourceID,
			Quantity:   req.QuantityPerStudent * participants,
		})
	}
	return out
}

type requirementReader interface {
	ListRequirements(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.ResourceRequirement, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// RequirementService exposes requirement resolution for a class.
type RequirementService struct {
	classes      classReader
	requirements requirementReader
}

// NewRequirementService constructs the service.
func NewRequirementService(classes classReader, requirements requirementReader) *RequirementService {
	return &RequirementService{classes: classes, requirements: requirements}
}

// Resolve returns the units of each resource a class needs for the given head count.
func (s *RequirementService) Resolve(ctx context.Context, classID string, participants int) (*dto.RequirementsResponse, error) {
	if participants < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participants must not be negative")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, notFoundOr(err, "class", classID)
	}
	requirements, err := s.requirements.ListRequirements(ctx, nil, classID)
	if err != nil {
		return nil, internalError(err, "failed to load resource requirements")
	}
	if participants < 1 {
		participants = 1
	}
	return &dto.RequirementsResponse{
		ClassID:      classID,
		Participants: participants,
		Resources:    ResolveRequirements(requirements, participants),
	}, nil
}
