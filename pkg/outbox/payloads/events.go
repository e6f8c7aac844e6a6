package payloads

import (
	"time"

	"github.com/google/uuid"
)

// MessageCreatedEvent is emitted when a user posts to a channel.
type MessageCreatedEvent struct {
	MessageID uuid.UUID  `json:"message_id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	ServerID  uuid.UUID  `json:"server_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Content   string     `json:"content"`
	ReplyToID *uuid.UUID `json:"reply_to_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MessageUpdatedEvent carries the edited content.
type MessageUpdatedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	ServerID  uuid.UUID `json:"server_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageDeletedEvent signals a message was removed from its channel.
type MessageDeletedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	ServerID  uuid.UUID `json:"server_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ServerCreatedEvent signals a new community server.
type ServerCreatedEvent struct {
	ServerID  uuid.UUID `json:"server_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ServerDeletedEvent signals a server and everything under it is gone.
type ServerDeletedEvent struct {
	ServerID  uuid.UUID `json:"server_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// MemberCreatedEvent is emitted when a user joins a server.
type MemberCreatedEvent struct {
	ServerID uuid.UUID `json:"server_id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// MemberDeletedEvent is emitted when a user leaves or is removed.
type MemberDeletedEvent struct {
	ServerID  uuid.UUID `json:"server_id"`
	UserID    uuid.UUID `json:"user_id"`
	RemovedBy uuid.UUID `json:"removed_by"`
	LeftAt    time.Time `json:"left_at"`
}
