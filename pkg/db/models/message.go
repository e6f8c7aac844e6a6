package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a user-authored entry in a channel.
type Message struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ChannelID        uuid.UUID  `gorm:"column:channel_id;type:uuid;not null;index:idx_messages_channel_created"`
	AuthorID         uuid.UUID  `gorm:"column:author_id;type:uuid;not null;index"`
	Content          string     `gorm:"type:text;not null"`
	ReplyToMessageID *uuid.UUID `gorm:"column:reply_to_message_id;type:uuid"`
	Pinned           bool       `gorm:"column:pinned;not null;default:false"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_messages_channel_created"`
	UpdatedAt        *time.Time `gorm:"column:updated_at"`
}
