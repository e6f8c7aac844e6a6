package members

import (
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// UpdateMemberRequest carries the mutable membership fields.
type UpdateMemberRequest struct {
	Nickname *string `json:"nickname,omitempty" validate:"omitempty,max=64"`
}

// MemberDTO is the transport shape for a server membership.
type MemberDTO struct {
	ID       uuid.UUID `json:"id"`
	ServerID uuid.UUID `json:"server_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Nickname *string   `json:"nickname,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

func FromModel(m *models.ServerMember) *MemberDTO {
	if m == nil {
		return nil
	}
	return &MemberDTO{
		ID:       m.ID,
		ServerID: m.ServerID,
		UserID:   m.UserID,
		Nickname: m.Nickname,
		JoinedAt: m.JoinedAt,
	}
}
