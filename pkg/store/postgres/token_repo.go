package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/model"
)

// TokenRepository exclusively owns confirmation tokens. Callers create
// and delete sets keyed by team; nothing else touches the table.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) CreateBatch(ctx context.Context, tokens []model.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(tokens, 100).Error
}

func (r *TokenRepository) Get(ctx context.Context, tokenID string) (*model.Token, error) {
	var token model.Token
	err := r.db.WithContext(ctx).First(&token, "id = ?", tokenID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *TokenRepository) Delete(ctx context.Context, tokenID string) error {
	return r.db.WithContext(ctx).Where("id = ?", tokenID).Delete(&model.Token{}).Error
}

func (r *TokenRepository) DeleteForTeam(ctx context.Context, teamID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("team_id = ?", teamID).Delete(&model.Token{}).Error
}

func (r *TokenRepository) CountForTeam(ctx context.Context, teamID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Token{}).
		Where("team_id = ?", teamID).
		Count(&count).Error
	return int(count), err
}

func (r *TokenRepository) ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.Token, error) {
	var tokens []model.Token
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Find(&tokens).Error
	return tokens, err
}

func (r *TokenRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Token, error) {
	var tokens []model.Token
	err := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Find(&tokens).Error
	return tokens, err
}
