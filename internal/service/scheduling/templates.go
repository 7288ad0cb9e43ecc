package scheduling

import (
	"context"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

// Templates manages the weekly working hours read by SlotGenerator.
type Templates struct {
	repo store.AvailabilityRepository
	deps deps
}

func NewTemplates(repo store.AvailabilityRepository, opts ...Option) *Templates {
	return &Templates{repo: repo, deps: newDeps(opts)}
}

func (t *Templates) Upsert(ctx context.Context, tpl domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error) {
	if err := tpl.Validate(); err != nil {
		return domain.AvailabilityTemplate{}, validationError(ReasonInvalidTemplate, err.Error())
	}
	out, err := t.repo.UpsertTemplate(ctx, tpl)
	if err != nil {
		return domain.AvailabilityTemplate{}, err
	}
	t.deps.logger.Info("template updated",
		"resource", tpl.Resource().String(),
		"day_of_week", tpl.DayOfWeek,
		"window", tpl.WindowStart.String()+"-"+tpl.WindowEnd.String(),
		"available", tpl.IsAvailable,
	)
	return out, nil
}

func (t *Templates) List(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error) {
	if !ref.Kind.Valid() || ref.ID == uuid.Nil {
		return nil, validationError(ReasonInvalidArgument, "resource is required")
	}
	return t.repo.ListTemplates(ctx, ref)
}
