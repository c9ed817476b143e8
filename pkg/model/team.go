package model

import (
	"time"

	"github.com/google/uuid"
)

type TeamStatus string

const (
	TeamPending TeamStatus = "PENDING"
	TeamActive  TeamStatus = "ACTIVE"
	// Eviction deletes the row; there is no terminal status value.
)

// Team membership is fixed at proposal time. A PENDING team carries
// one live confirmation token per non-proposer member; the last
// confirm flips it to ACTIVE, any reject or expiry deletes it.
type Team struct {
	ID         uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CourseID   uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_course_team_name"`
	Name       string       `gorm:"not null;uniqueIndex:idx_course_team_name"`
	Status     TeamStatus   `gorm:"type:varchar(20);default:'PENDING';index"`
	ProposerID string       `gorm:"not null"`
	Members    []TeamMember `gorm:"foreignKey:TeamID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type TeamMember struct {
	TeamID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_team_member"`
	StudentID string    `gorm:"not null;uniqueIndex:idx_team_member;index"`
	CreatedAt time.Time
}

func (t *Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.StudentID)
	}
	return ids
}

func (t *Team) HasMember(studentID string) bool {
	for _, m := range t.Members {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}
