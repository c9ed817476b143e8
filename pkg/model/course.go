package model

import (
	"time"

	"github.com/google/uuid"
)

// Student ids are the externally-issued registry strings, kept as
// natural keys. Same for teachers.
type Student struct {
	ID        string `gorm:"primary_key"`
	FirstName string
	LastName  string
	Email     string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Teacher struct {
	ID        string `gorm:"primary_key"`
	FirstName string
	LastName  string
	Email     string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Course struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name       string    `gorm:"uniqueIndex;not null"`
	Acronym    string
	MinMembers int    `gorm:"default:1"`
	MaxMembers int    `gorm:"default:4"`
	Enabled    bool   `gorm:"default:true"`
	Quota      *Quota `gorm:"foreignKey:CourseID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Enrollment is the student_course join row. Membership checks go
// through indexed lookups on this table, never object graphs.
type Enrollment struct {
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment"`
	StudentID string    `gorm:"not null;uniqueIndex:idx_enrollment;index"`
	CreatedAt time.Time
}

type CourseTeacher struct {
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_teacher"`
	TeacherID string    `gorm:"not null;uniqueIndex:idx_course_teacher;index"`
	CreatedAt time.Time
}
