package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "PENDING"
	InvitationPublished InvitationStatus = "PUBLISHED"
	InvitationFailed    InvitationStatus = "FAILED"
)

// Invitation is the notifier's outbox row: one per proposal, listing
// every invitee still owed a confirmation link. The relay drains
// pending rows and fans out one queue message per invitee.
type Invitation struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TeamID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	TeamName    string           `gorm:"not null"`
	CourseName  string           `gorm:"not null"`
	Invitees    pq.StringArray   `gorm:"type:text[];not null"`
	ExpiresAt   time.Time        `gorm:"not null"`
	Status      InvitationStatus `gorm:"type:varchar(20);default:'PENDING';index"`
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
