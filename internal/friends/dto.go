package friends

import (
	"time"

	"github.com/google/uuid"
)

// SendRequestDTO carries the target of a new friend request.
type SendRequestDTO struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// FriendDTO is the transport shape for an established friendship.
type FriendDTO struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Since    time.Time `json:"since"`
}

// FriendRequestDTO is the transport shape for a pending request.
type FriendRequestDTO struct {
	RequesterID uuid.UUID `json:"requester_id"`
	InvitedID   uuid.UUID `json:"invited_id"`
	Username    string    `json:"username,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RequestsDTO splits pending requests by direction relative to the caller.
type RequestsDTO struct {
	Incoming []FriendRequestDTO `json:"incoming"`
	Outgoing []FriendRequestDTO `json:"outgoing"`
}
