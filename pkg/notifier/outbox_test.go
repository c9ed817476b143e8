package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
)

func TestOutboxRecordsOneRowPerProposal(t *testing.T) {
	invitations := newFakeInvitationStore()
	outbox := NewOutbox(invitations, zap.NewNop())

	teamID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)
	team := &model.Team{ID: teamID, Name: "kernel-hackers"}
	course := &model.Course{Name: "Operating Systems"}
	tokens := []model.Token{
		model.NewToken(teamID, "bob", expiresAt),
		model.NewToken(teamID, "carol", expiresAt),
	}

	if err := outbox.Notify(context.Background(), team, course, tokens); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(invitations.invitations) != 1 {
		t.Fatalf("expected 1 invitation row, got %d", len(invitations.invitations))
	}
	for _, invitation := range invitations.invitations {
		if len(invitation.Invitees) != 2 {
			t.Fatalf("expected 2 invitees, got %d", len(invitation.Invitees))
		}
		if invitation.Status != model.InvitationPending {
			t.Fatalf("expected PENDING status, got %s", invitation.Status)
		}
	}
}

func TestOutboxSkipsProposalsWithoutTokens(t *testing.T) {
	invitations := newFakeInvitationStore()
	outbox := NewOutbox(invitations, zap.NewNop())

	err := outbox.Notify(context.Background(), &model.Team{ID: uuid.New()}, &model.Course{}, nil)
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(invitations.invitations) != 0 {
		t.Fatal("expected no invitation rows")
	}
}
