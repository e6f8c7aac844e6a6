package models

import (
	"time"

	"github.com/google/uuid"
)

// Friendship links two users. Rows are normalized so UserID1 sorts before
// UserID2, which makes the pair unique regardless of who initiated it.
type Friendship struct {
	UserID1   uuid.UUID `gorm:"column:user_id_1;type:uuid;not null;primaryKey"`
	UserID2   uuid.UUID `gorm:"column:user_id_2;type:uuid;not null;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// FriendRequest is a pending invitation from one user to another.
type FriendRequest struct {
	RequesterID uuid.UUID `gorm:"column:requester_id;type:uuid;not null;primaryKey"`
	InvitedID   uuid.UUID `gorm:"column:invited_id;type:uuid;not null;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
