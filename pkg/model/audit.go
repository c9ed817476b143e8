package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEvent records every formation transition and admission
// decision: who did what to which entity, with free-form details.
type AuditEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EntityType string    `gorm:"not null;index:idx_audit_entity"`
	EntityID   string    `gorm:"not null;index:idx_audit_entity"`
	Action     string    `gorm:"not null"`
	ActorID    string
	Details    JSONB     `gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time `gorm:"index"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}
