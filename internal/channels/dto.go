package channels

import (
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// CreateChannelRequest carries the payload for creating a channel.
type CreateChannelRequest struct {
	Name  string  `json:"name" validate:"required,min=1,max=100"`
	Topic *string `json:"topic,omitempty" validate:"omitempty,max=1000"`
}

// UpdateChannelRequest carries the mutable channel fields; nil means unchanged.
type UpdateChannelRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Topic *string `json:"topic,omitempty" validate:"omitempty,max=1000"`
}

// ChannelDTO is the transport shape for a channel.
type ChannelDTO struct {
	ID        uuid.UUID  `json:"id"`
	ServerID  uuid.UUID  `json:"server_id"`
	Name      string     `json:"name"`
	Topic     *string    `json:"topic,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func FromModel(c *models.Channel) *ChannelDTO {
	if c == nil {
		return nil
	}
	return &ChannelDTO{
		ID:        c.ID,
		ServerID:  c.ServerID,
		Name:      c.Name,
		Topic:     c.Topic,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromModels(rows []models.Channel) []ChannelDTO {
	out := make([]ChannelDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
