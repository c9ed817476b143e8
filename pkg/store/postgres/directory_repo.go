package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/model"
)

// DirectoryRepository answers the identity and enrollment questions
// the core services consume through their collaborator interfaces.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) GetCourse(ctx context.Context, courseID uuid.UUID) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).
		Preload("Quota").
		First(&course, "id = ?", courseID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &course, nil
}

func (r *DirectoryRepository) StudentExists(ctx context.Context, studentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Student{}).
		Where("id = ?", studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *DirectoryRepository) IsEnrolled(ctx context.Context, studentID string, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *DirectoryRepository) IsCourseTeacher(ctx context.Context, teacherID string, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CourseTeacher{}).
		Where("course_id = ? AND teacher_id = ?", courseID, teacherID).
		Count(&count).Error
	return count > 0, err
}
