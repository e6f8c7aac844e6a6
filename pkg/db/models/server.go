package models

import (
	"time"

	"github.com/communityhq/communities-backend/pkg/enums"
	"github.com/google/uuid"
)

// Server is a community space owned by a user; channels and members hang off it.
type Server struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string           `gorm:"type:text;not null"`
	Description *string          `gorm:"column:description"`
	PictureURL  *string          `gorm:"column:picture_url"`
	BannerURL   *string          `gorm:"column:banner_url"`
	OwnerID     uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;index"`
	Visibility  enums.Visibility `gorm:"column:visibility;type:text;not null;default:public"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   *time.Time       `gorm:"column:updated_at"`
}
