package model

import (
	"time"

	"github.com/google/uuid"
)

// Token binds one invited student to one pending team. The id is the
// opaque credential mailed to the student; possession is the only
// authorization confirm/reject require.
type Token struct {
	ID        string    `gorm:"primary_key"`
	TeamID    uuid.UUID `gorm:"type:uuid;not null;index"`
	StudentID string    `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func NewToken(teamID uuid.UUID, studentID string, expiresAt time.Time) Token {
	return Token{
		ID:        uuid.New().String(),
		TeamID:    teamID,
		StudentID: studentID,
		ExpiresAt: expiresAt,
	}
}

func (t *Token) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
