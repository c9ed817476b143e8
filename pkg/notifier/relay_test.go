package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/queue"
)

type fakeInvitationStore struct {
	invitations map[uuid.UUID]*model.Invitation
}

func newFakeInvitationStore() *fakeInvitationStore {
	return &fakeInvitationStore{invitations: make(map[uuid.UUID]*model.Invitation)}
}

func (f *fakeInvitationStore) Create(ctx context.Context, invitation *model.Invitation) error {
	if invitation.ID == uuid.Nil {
		invitation.ID = uuid.New()
	}
	f.invitations[invitation.ID] = invitation
	return nil
}

func (f *fakeInvitationStore) ListPending(ctx context.Context, limit int) ([]model.Invitation, error) {
	var pending []model.Invitation
	for _, invitation := range f.invitations {
		if invitation.Status == model.InvitationPending && len(pending) < limit {
			pending = append(pending, *invitation)
		}
	}
	return pending, nil
}

func (f *fakeInvitationStore) MarkPublished(ctx context.Context, invitationID uuid.UUID, publishedAt time.Time) error {
	invitation, ok := f.invitations[invitationID]
	if !ok {
		return errors.New("invitation not found")
	}
	invitation.Status = model.InvitationPublished
	invitation.PublishedAt = &publishedAt
	return nil
}

func (f *fakeInvitationStore) MarkFailed(ctx context.Context, invitationID uuid.UUID) error {
	invitation, ok := f.invitations[invitationID]
	if !ok {
		return errors.New("invitation not found")
	}
	invitation.Status = model.InvitationFailed
	return nil
}

type fakeTokenLister struct {
	tokens []model.Token
}

func (f *fakeTokenLister) ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.Token, error) {
	var matched []model.Token
	for _, token := range f.tokens {
		if token.TeamID == teamID {
			matched = append(matched, token)
		}
	}
	return matched, nil
}

type capturingPublisher struct {
	published []queue.InviteMessage
	fail      bool
}

func (p *capturingPublisher) Publish(ctx context.Context, msg queue.InviteMessage) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	return nil
}

func TestRelayPublishesOneMessagePerInvitee(t *testing.T) {
	teamID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)

	invitations := newFakeInvitationStore()
	_ = invitations.Create(context.Background(), &model.Invitation{
		TeamID:     teamID,
		TeamName:   "kernel-hackers",
		CourseName: "Operating Systems",
		Invitees:   pq.StringArray{"bob", "carol"},
		ExpiresAt:  expiresAt,
		Status:     model.InvitationPending,
	})

	tokens := &fakeTokenLister{tokens: []model.Token{
		model.NewToken(teamID, "bob", expiresAt),
		model.NewToken(teamID, "carol", expiresAt),
	}}
	publisher := &capturingPublisher{}

	relay := NewRelay(invitations, tokens, publisher, "https://lab.example.edu", time.Second, 10, zap.NewNop())
	if err := relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}

	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(publisher.published))
	}
	for _, msg := range publisher.published {
		if !strings.HasPrefix(msg.ConfirmURL, "https://lab.example.edu/api/v1/confirm/") {
			t.Fatalf("unexpected confirm url %q", msg.ConfirmURL)
		}
		if !strings.HasPrefix(msg.RejectURL, "https://lab.example.edu/api/v1/reject/") {
			t.Fatalf("unexpected reject url %q", msg.RejectURL)
		}
	}

	for _, invitation := range invitations.invitations {
		if invitation.Status != model.InvitationPublished {
			t.Fatalf("expected PUBLISHED status, got %s", invitation.Status)
		}
		if invitation.PublishedAt == nil {
			t.Fatal("expected published timestamp")
		}
	}
}

func TestRelaySkipsConsumedTokens(t *testing.T) {
	teamID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)

	invitations := newFakeInvitationStore()
	_ = invitations.Create(context.Background(), &model.Invitation{
		TeamID:     teamID,
		TeamName:   "kernel-hackers",
		CourseName: "Operating Systems",
		Invitees:   pq.StringArray{"bob", "carol"},
		ExpiresAt:  expiresAt,
		Status:     model.InvitationPending,
	})

	// Carol already confirmed; only bob's token survives.
	tokens := &fakeTokenLister{tokens: []model.Token{
		model.NewToken(teamID, "bob", expiresAt),
	}}
	publisher := &capturingPublisher{}

	relay := NewRelay(invitations, tokens, publisher, "https://lab.example.edu", time.Second, 10, zap.NewNop())
	if err := relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(publisher.published))
	}
	if publisher.published[0].StudentID != "bob" {
		t.Fatalf("expected message for bob, got %s", publisher.published[0].StudentID)
	}
}

func TestRelayMarksFailedOnPublishError(t *testing.T) {
	teamID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)

	invitations := newFakeInvitationStore()
	_ = invitations.Create(context.Background(), &model.Invitation{
		TeamID:    teamID,
		TeamName:  "kernel-hackers",
		Invitees:  pq.StringArray{"bob"},
		ExpiresAt: expiresAt,
		Status:    model.InvitationPending,
	})

	tokens := &fakeTokenLister{tokens: []model.Token{
		model.NewToken(teamID, "bob", expiresAt),
	}}
	publisher := &capturingPublisher{fail: true}

	relay := NewRelay(invitations, tokens, publisher, "https://lab.example.edu", time.Second, 10, zap.NewNop())
	if err := relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}

	for _, invitation := range invitations.invitations {
		if invitation.Status != model.InvitationFailed {
			t.Fatalf("expected FAILED status, got %s", invitation.Status)
		}
	}
}
