package mailer

import (
	"bytes"
	"context"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/queue"
)

var inviteTemplate = template.Must(template.New("invite").Parse(
	`You have been proposed as a member of team "{{.TeamName}}" for the course {{.CourseName}}.

Confirm: {{.ConfirmURL}}
Reject:  {{.RejectURL}}

The proposal expires at {{.ExpiresAt}}. If nobody rejects and every
member confirms before then, the team becomes active.
`))

// Sender delivers one rendered invitation to a student.
type Sender interface {
	Send(ctx context.Context, studentID, body string) error
}

// LogSender writes the mail to the log instead of a mailbox. Useful
// in development and wherever the platform mail gateway handles real
// delivery.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(ctx context.Context, studentID, body string) error {
	s.Logger.Info("invitation mail",
		zap.String("student_id", studentID),
		zap.String("body", body))
	return nil
}

// Mailer renders invite messages and hands them to a Sender. Its
// Handle method plugs straight into the queue consumer.
type Mailer struct {
	sender Sender
	logger *zap.Logger
}

func New(sender Sender, logger *zap.Logger) *Mailer {
	return &Mailer{sender: sender, logger: logger}
}

func (m *Mailer) Handle(ctx context.Context, msg queue.InviteMessage) error {
	var buf bytes.Buffer
	err := inviteTemplate.Execute(&buf, struct {
		TeamName   string
		CourseName string
		ConfirmURL string
		RejectURL  string
		ExpiresAt  string
	}{
		TeamName:   msg.TeamName,
		CourseName: msg.CourseName,
		ConfirmURL: msg.ConfirmURL,
		RejectURL:  msg.RejectURL,
		ExpiresAt:  msg.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg.StudentID, buf.String())
}
