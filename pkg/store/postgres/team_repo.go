package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

type TeamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) Create(ctx context.Context, team *model.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *TeamRepository) Get(ctx context.Context, teamID uuid.UUID) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).
		Preload("Members").
		First(&team, "id = ?", teamID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &team, nil
}

func (r *TeamRepository) NameTaken(ctx context.Context, courseID uuid.UUID, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Team{}).
		Where("course_id = ? AND name = ?", courseID, name).
		Count(&count).Error
	return count > 0, err
}

// ActiveMemberIDs lists every student already committed to an ACTIVE
// team of the course. PENDING membership does not block a new
// proposal.
func (r *TeamRepository) ActiveMemberIDs(ctx context.Context, courseID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.TeamMember{}).
		Joins("JOIN teams ON teams.id = team_members.team_id").
		Where("teams.course_id = ? AND teams.status = ?", courseID, model.TeamActive).
		Distinct().
		Pluck("team_members.student_id", &ids).Error
	return ids, err
}

func (r *TeamRepository) Activate(ctx context.Context, teamID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.Team{}).
		Where("id = ?", teamID).
		Updates(map[string]interface{}{
			"status":     model.TeamActive,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete evicts the team: the row and its member associations go
// together, in one transaction.
func (r *TeamRepository) Delete(ctx context.Context, teamID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("team_id = ?", teamID).Delete(&model.TeamMember{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", teamID).Delete(&model.Team{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *TeamRepository) ListForCourse(ctx context.Context, courseID uuid.UUID) ([]model.Team, error) {
	var teams []model.Team
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("course_id = ?", courseID).
		Order("created_at").
		Find(&teams).Error
	return teams, err
}

func (r *TeamRepository) ForStudent(ctx context.Context, courseID uuid.UUID, studentID string) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("teams.course_id = ? AND team_members.student_id = ?", courseID, studentID).
		First(&team).Error
	if err != nil {
		return nil, translate(err)
	}
	return &team, nil
}
