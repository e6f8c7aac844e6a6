package models

import (
	"time"

	"github.com/google/uuid"
)

// ServerMember records a user's membership in a server.
type ServerMember struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ServerID  uuid.UUID  `gorm:"column:server_id;type:uuid;not null;uniqueIndex:ux_server_members_server_user"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_server_members_server_user"`
	Nickname  *string    `gorm:"column:nickname"`
	JoinedAt  time.Time  `gorm:"column:joined_at;autoCreateTime"`
	UpdatedAt *time.Time `gorm:"column:updated_at"`
}
