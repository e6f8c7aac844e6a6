package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a named message stream inside a server.
type Channel struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ServerID  uuid.UUID  `gorm:"column:server_id;type:uuid;not null;index"`
	Name      string     `gorm:"type:text;not null"`
	Topic     *string    `gorm:"column:topic"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt *time.Time `gorm:"column:updated_at"`
}
