package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *AuditRepository) Query(ctx context.Context, query store.AuditQuery) ([]model.AuditEvent, error) {
	db := r.db.WithContext(ctx).Model(&model.AuditEvent{})

	if query.EntityType != "" {
		db = db.Where("entity_type = ?", query.EntityType)
	}
	if query.EntityID != "" {
		db = db.Where("entity_id = ?", query.EntityID)
	}
	if query.Action != "" {
		db = db.Where("action = ?", query.Action)
	}
	if query.Since != nil {
		db = db.Where("created_at >= ?", *query.Since)
	}
	if query.Until != nil {
		db = db.Where("created_at <= ?", *query.Until)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []model.AuditEvent
	err := db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditEvent{}).Error
}
