package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/model"
)

// InvitationRepository is the notifier's outbox table.
type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) Create(ctx context.Context, invitation *model.Invitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *InvitationRepository) ListPending(ctx context.Context, limit int) ([]model.Invitation, error) {
	var invitations []model.Invitation
	err := r.db.WithContext(ctx).
		Where("status = ?", model.InvitationPending).
		Order("created_at").
		Limit(limit).
		Find(&invitations).Error
	return invitations, err
}

func (r *InvitationRepository) MarkPublished(ctx context.Context, invitationID uuid.UUID, publishedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Invitation{}).
		Where("id = ?", invitationID).
		Updates(map[string]interface{}{
			"status":       model.InvitationPublished,
			"published_at": &publishedAt,
			"updated_at":   time.Now(),
		}).Error
}

func (r *InvitationRepository) MarkFailed(ctx context.Context, invitationID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Invitation{}).
		Where("id = ?", invitationID).
		Updates(map[string]interface{}{
			"status":     model.InvitationFailed,
			"updated_at": time.Now(),
		}).Error
}
