package store

import (
	"context"
	"time"

	"github.com/courselab/courselab/pkg/model"
)

// AuditQuery filters the audit trail.
type AuditQuery struct {
	EntityType string
	EntityID   string
	Action     string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// AuditStore persists audit events. Postgres is the default backend;
// ClickHouse is available for long retention.
type AuditStore interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	Query(ctx context.Context, query AuditQuery) ([]model.AuditEvent, error)
	DeleteOlderThan(ctx context.Context, retentionDays int) error
}
