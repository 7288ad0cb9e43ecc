package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) FindTemplate(ctx context.Context, ref domain.ResourceRef, day time.Weekday) (domain.AvailabilityTemplate, error) {
	var t domain.AvailabilityTemplate
	err := r.db.NewSelect().
		Model(&t).
		Where("resource_kind = ?", ref.Kind).
		Where("resource_id = ?", ref.ID).
		Where("day_of_week = ?", int16(day)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AvailabilityTemplate{}, store.ErrNotFound
		}
		return domain.AvailabilityTemplate{}, store.Wrap("find template", err)
	}
	return t, nil
}

func (r *AvailabilityRepo) ListTemplates(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error) {
	var rows []domain.AvailabilityTemplate
	err := r.db.NewSelect().
		Model(&rows).
		Where("resource_kind = ?", ref.Kind).
		Where("resource_id = ?", ref.ID).
		OrderExpr("day_of_week ASC").
		Scan(ctx)
	if err != nil {
		return nil, store.Wrap("list templates", err)
	}
	return rows, nil
}

func (r *AvailabilityRepo) UpsertTemplate(ctx context.Context, t domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error) {
	m := t

	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (resource_kind, resource_id, day_of_week) DO UPDATE").
		Set("window_start_minute = EXCLUDED.window_start_minute").
		Set("window_end_minute = EXCLUDED.window_end_minute").
		Set("is_available = EXCLUDED.is_available").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.AvailabilityTemplate{}, store.Wrap("upsert template", err)
	}
	return m, nil
}
