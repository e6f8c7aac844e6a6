package models

import (
	"encoding/json"
	"time"

	"github.com/communityhq/communities-backend/pkg/enums"
	"github.com/google/uuid"
)

// OutboxMessage is a durably queued domain event awaiting broker delivery.
//
// The ID is generated by the writer before the insert and doubles as the
// idempotency key: a second insert with the same ID is a no-op. Only the
// relay mutates rows after creation, and only the status/failure columns.
type OutboxMessage struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	ExchangeName  string             `gorm:"column:exchange_name;type:text;not null"`
	RoutingKey    string             `gorm:"column:routing_key;type:text;not null"`
	Payload       json.RawMessage    `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.OutboxStatus `gorm:"column:status;type:text;not null;default:READY;index:idx_outbox_messages_status_created"`
	AttemptCount  int                `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string            `gorm:"column:last_error"`
	NextAttemptAt *time.Time         `gorm:"column:next_attempt_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime;index:idx_outbox_messages_status_created"`
	FailedAt      *time.Time         `gorm:"column:failed_at"`
}

// TableName pins the table used by the writer and relay.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
