package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/queue"
)

type capturingSender struct {
	studentID string
	body      string
}

func (s *capturingSender) Send(ctx context.Context, studentID, body string) error {
	s.studentID = studentID
	s.body = body
	return nil
}

func TestHandleRendersInvite(t *testing.T) {
	sender := &capturingSender{}
	m := New(sender, zap.NewNop())

	err := m.Handle(context.Background(), queue.InviteMessage{
		StudentID:  "bob",
		TeamName:   "kernel-hackers",
		CourseName: "Operating Systems",
		ConfirmURL: "https://lab.example.edu/api/v1/confirm/abc",
		RejectURL:  "https://lab.example.edu/api/v1/reject/abc",
		ExpiresAt:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if sender.studentID != "bob" {
		t.Fatalf("expected mail for bob, got %q", sender.studentID)
	}
	for _, want := range []string{"kernel-hackers", "Operating Systems", "confirm/abc", "reject/abc"} {
		if !strings.Contains(sender.body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, sender.body)
		}
	}
}
