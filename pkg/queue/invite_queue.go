package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/config"
)

const maxDeliveryAttempts = 3

// InviteMessage is one confirmation mail waiting to be sent. The relay
// produces one message per invitee; the mailer consumes them.
type InviteMessage struct {
	InvitationID string    `json:"invitation_id"`
	StudentID    string    `json:"student_id"`
	TeamName     string    `json:"team_name"`
	CourseName   string    `json:"course_name"`
	ConfirmURL   string    `json:"confirm_url"`
	RejectURL    string    `json:"reject_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg *config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.InviteTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish keys by student so one invitee's mails stay ordered.
func (p *Producer) Publish(ctx context.Context, msg InviteMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invite message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.StudentID),
		Value: data,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler processes one invite message. A returned error sends the
// message to the retry topic, then to the DLQ once attempts run out.
type Handler func(ctx context.Context, msg InviteMessage) error

type Consumer struct {
	reader      *kafka.Reader
	retryWriter *kafka.Writer
	dlqWriter   *kafka.Writer
	handler     Handler
	logger      *zap.Logger
}

func NewConsumer(cfg *config.KafkaConfig, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.InviteTopic,
			GroupID:        cfg.MailerGroup,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			CommitInterval: 0,
		}),
		retryWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.InviteRetryTopic,
			RequiredAcks: kafka.RequireAll,
		},
		dlqWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.InviteDLQTopic,
			RequiredAcks: kafka.RequireAll,
		},
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("invite consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to fetch message", zap.Error(err))
			continue
		}

		var msg InviteMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.logger.Error("dropping malformed invite message", zap.Error(err))
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.logger.Error("failed to commit message", zap.Error(err))
			}
			continue
		}

		if err := c.handler(ctx, msg); err != nil {
			c.logger.Warn("invite handler failed",
				zap.Error(err),
				zap.String("student_id", msg.StudentID))
			c.reroute(ctx, m, msg)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit message", zap.Error(err))
		}
	}
}

func (c *Consumer) reroute(ctx context.Context, m kafka.Message, msg InviteMessage) {
	attempt := attemptOf(m) + 1

	out := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: []kafka.Header{
			{Key: "attempt", Value: []byte(strconv.Itoa(attempt))},
		},
	}

	writer := c.retryWriter
	if attempt >= maxDeliveryAttempts {
		writer = c.dlqWriter
		c.logger.Error("invite exhausted delivery attempts, sending to DLQ",
			zap.String("student_id", msg.StudentID),
			zap.Int("attempts", attempt))
	}

	if err := writer.WriteMessages(ctx, out); err != nil {
		c.logger.Error("failed to reroute invite message", zap.Error(err))
	}
}

func attemptOf(m kafka.Message) int {
	for _, h := range m.Headers {
		if h.Key == "attempt" {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return err
	}
	if err := c.retryWriter.Close(); err != nil {
		return err
	}
	return c.dlqWriter.Close()
}
