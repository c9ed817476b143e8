package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
)

// InvitationStore is the outbox table.
type InvitationStore interface {
	Create(ctx context.Context, invitation *model.Invitation) error
	ListPending(ctx context.Context, limit int) ([]model.Invitation, error)
	MarkPublished(ctx context.Context, invitationID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, invitationID uuid.UUID) error
}

// Outbox records an invitation row in the same database as the team,
// so a crashed process never loses a notification. The relay drains
// the rows asynchronously.
type Outbox struct {
	invitations InvitationStore
	logger      *zap.Logger
}

func NewOutbox(invitations InvitationStore, logger *zap.Logger) *Outbox {
	return &Outbox{invitations: invitations, logger: logger}
}

func (o *Outbox) Notify(ctx context.Context, team *model.Team, course *model.Course, tokens []model.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	invitees := make([]string, 0, len(tokens))
	for _, token := range tokens {
		invitees = append(invitees, token.StudentID)
	}

	invitation := &model.Invitation{
		TeamID:     team.ID,
		TeamName:   team.Name,
		CourseName: course.Name,
		Invitees:   pq.StringArray(invitees),
		ExpiresAt:  tokens[0].ExpiresAt,
		Status:     model.InvitationPending,
	}
	if err := o.invitations.Create(ctx, invitation); err != nil {
		return err
	}

	o.logger.Debug("invitation queued",
		zap.String("team_id", team.ID.String()),
		zap.Int("invitees", len(invitees)))
	return nil
}

// Noop discards notifications. Used by binaries that never propose
// teams and by tests.
type Noop struct{}

func (Noop) Notify(context.Context, *model.Team, *model.Course, []model.Token) error {
	return nil
}
