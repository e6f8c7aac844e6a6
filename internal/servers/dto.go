package servers

import (
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
)

// CreateServerRequest carries the payload for creating a community server.
type CreateServerRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Visibility  string  `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
	PictureURL  *string `json:"picture_url,omitempty" validate:"omitempty,url"`
	BannerURL   *string `json:"banner_url,omitempty" validate:"omitempty,url"`
}

// UpdateServerRequest carries the mutable server fields; nil means unchanged.
type UpdateServerRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Visibility  *string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
	PictureURL  *string `json:"picture_url,omitempty" validate:"omitempty,url"`
	BannerURL   *string `json:"banner_url,omitempty" validate:"omitempty,url"`
}

// ServerDTO is the transport shape for a server.
type ServerDTO struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	PictureURL  *string          `json:"picture_url,omitempty"`
	BannerURL   *string          `json:"banner_url,omitempty"`
	OwnerID     uuid.UUID        `json:"owner_id"`
	Visibility  enums.Visibility `json:"visibility"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// ServerList wraps a page of servers and the cursor for the next page.
type ServerList struct {
	Servers    []ServerDTO `json:"servers"`
	NextCursor *string     `json:"next_cursor,omitempty"`
}

func FromModel(s *models.Server) *ServerDTO {
	if s == nil {
		return nil
	}
	return &ServerDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		PictureURL:  s.PictureURL,
		BannerURL:   s.BannerURL,
		OwnerID:     s.OwnerID,
		Visibility:  s.Visibility,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromModels(rows []models.Server) []ServerDTO {
	out := make([]ServerDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
