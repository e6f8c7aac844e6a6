package messages

import (
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// CreateMessageRequest carries the payload for posting a message.
type CreateMessageRequest struct {
	Content          string     `json:"content" validate:"required,min=1,max=4000"`
	ReplyToMessageID *uuid.UUID `json:"reply_to_message_id,omitempty"`
}

// UpdateMessageRequest carries the mutable message fields; nil means unchanged.
type UpdateMessageRequest struct {
	Content *string `json:"content,omitempty" validate:"omitempty,min=1,max=4000"`
	Pinned  *bool   `json:"pinned,omitempty"`
}

// MessageDTO is the transport shape for a message.
type MessageDTO struct {
	ID               uuid.UUID  `json:"id"`
	ChannelID        uuid.UUID  `json:"channel_id"`
	AuthorID         uuid.UUID  `json:"author_id"`
	Content          string     `json:"content"`
	ReplyToMessageID *uuid.UUID `json:"reply_to_message_id,omitempty"`
	Pinned           bool       `json:"pinned"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// MessageList wraps a page of messages and the cursor for the next page.
type MessageList struct {
	Messages   []MessageDTO `json:"messages"`
	NextCursor *string      `json:"next_cursor,omitempty"`
}

func FromModel(m *models.Message) *MessageDTO {
	if m == nil {
		return nil
	}
	return &MessageDTO{
		ID:               m.ID,
		ChannelID:        m.ChannelID,
		AuthorID:         m.AuthorID,
		Content:          m.Content,
		ReplyToMessageID: m.ReplyToMessageID,
		Pinned:           m.Pinned,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fromModels(rows []models.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
