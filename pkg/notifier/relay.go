package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/metrics"
	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/queue"
)

// TokenLister exposes the live tokens of a team so the relay can put
// real confirmation links in the messages it publishes.
type TokenLister interface {
	ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.Token, error)
}

// InvitePublisher hands one message to the queue.
type InvitePublisher interface {
	Publish(ctx context.Context, msg queue.InviteMessage) error
}

// Relay drains pending invitation rows and fans out one queue message
// per invitee. Messages carry the invitee's own confirm and reject
// links.
type Relay struct {
	invitations InvitationStore
	tokens      TokenLister
	publisher   InvitePublisher
	baseURL     string
	interval    time.Duration
	batchSize   int
	logger      *zap.Logger
}

func NewRelay(invitations InvitationStore, tokens TokenLister, publisher InvitePublisher, baseURL string, interval time.Duration, batchSize int, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		invitations: invitations,
		tokens:      tokens,
		publisher:   publisher,
		baseURL:     baseURL,
		interval:    interval,
		batchSize:   batchSize,
		logger:      logger,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("invitation relay started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("invitation relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RelayOnce(ctx); err != nil {
				r.logger.Error("relay pass failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch of pending invitations.
func (r *Relay) RelayOnce(ctx context.Context) error {
	pending, err := r.invitations.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, invitation := range pending {
		if err := r.publish(ctx, invitation); err != nil {
			r.logger.Warn("failed to publish invitation",
				zap.Error(err),
				zap.String("invitation_id", invitation.ID.String()))
			if err := r.invitations.MarkFailed(ctx, invitation.ID); err != nil {
				r.logger.Error("failed to mark invitation failed", zap.Error(err))
			}
			metrics.InvitesPublished.WithLabelValues("failed").Inc()
			continue
		}
		if err := r.invitations.MarkPublished(ctx, invitation.ID, time.Now()); err != nil {
			r.logger.Error("failed to mark invitation published", zap.Error(err))
			continue
		}
		metrics.InvitesPublished.WithLabelValues("published").Inc()
	}

	return nil
}

func (r *Relay) publish(ctx context.Context, invitation model.Invitation) error {
	tokens, err := r.tokens.ListForTeam(ctx, invitation.TeamID)
	if err != nil {
		return err
	}
	byStudent := make(map[string]model.Token, len(tokens))
	for _, token := range tokens {
		byStudent[token.StudentID] = token
	}

	for _, studentID := range invitation.Invitees {
		token, ok := byStudent[studentID]
		if !ok {
			// Token already consumed or reaped; nothing left to send
			// for this invitee.
			continue
		}
		msg := queue.InviteMessage{
			InvitationID: invitation.ID.String(),
			StudentID:    studentID,
			TeamName:     invitation.TeamName,
			CourseName:   invitation.CourseName,
			ConfirmURL:   r.baseURL + "/api/v1/confirm/" + token.ID,
			RejectURL:    r.baseURL + "/api/v1/reject/" + token.ID,
			ExpiresAt:    token.ExpiresAt,
		}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}
