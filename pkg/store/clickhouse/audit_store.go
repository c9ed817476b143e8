package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

// AuditStore keeps the audit trail in ClickHouse for long retention.
type AuditStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewAuditStore(addr string, database string, username string, password string, logger *zap.Logger) (*AuditStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &AuditStore{
		conn:   conn,
		logger: logger,
	}, nil
}

func (s *AuditStore) Append(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}
	return s.conn.Exec(ctx,
		"INSERT INTO audit_events (id, entity_type, entity_id, action, actor_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		event.ID,
		event.EntityType,
		event.EntityID,
		event.Action,
		event.ActorID,
		string(details),
		time.Now(),
	)
}

func (s *AuditStore) Query(ctx context.Context, query store.AuditQuery) ([]model.AuditEvent, error) {
	queryText := "SELECT id, entity_type, entity_id, action, actor_id, details, created_at FROM audit_events WHERE 1 = 1"
	args := []interface{}{}

	if query.EntityType != "" {
		queryText += " AND entity_type = ?"
		args = append(args, query.EntityType)
	}
	if query.EntityID != "" {
		queryText += " AND entity_id = ?"
		args = append(args, query.EntityID)
	}
	if query.Action != "" {
		queryText += " AND action = ?"
		args = append(args, query.Action)
	}
	if query.Since != nil {
		queryText += " AND created_at >= ?"
		args = append(args, *query.Since)
	}
	if query.Until != nil {
		queryText += " AND created_at <= ?"
		args = append(args, *query.Until)
	}

	queryText += " ORDER BY created_at DESC"

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	queryText += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.conn.Query(ctx, queryText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var event model.AuditEvent
		var details string
		if err := rows.Scan(
			&event.ID,
			&event.EntityType,
			&event.EntityID,
			&event.Action,
			&event.ActorID,
			&details,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &event.Details); err != nil {
				s.logger.Warn("malformed audit details", zap.Error(err), zap.String("event_id", event.ID.String()))
			}
		}
		events = append(events, event)
	}

	return events, nil
}

func (s *AuditStore) DeleteOlderThan(ctx context.Context, retentionDays int) error {
	// Retention is enforced by the table TTL.
	return nil
}

func (s *AuditStore) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the table if not exists.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID,
		entity_type LowCardinality(String),
		entity_id String,
		action LowCardinality(String),
		actor_id String,
		details String Codec(ZSTD),
		created_at DateTime DEFAULT now()
	)
	ENGINE = MergeTree()
	ORDER BY (entity_type, entity_id, created_at)
	PARTITION BY toYYYYMM(created_at)
	TTL created_at + INTERVAL 365 DAY
	`
	return s.conn.Exec(ctx, query)
}
