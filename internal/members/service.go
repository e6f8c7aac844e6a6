package members

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db"
	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/outbox"
	"github.com/communityhq/communities-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	Write(ctx context.Context, tx *gorm.DB, desc outbox.RoutingDescriptor, payload any) (uuid.UUID, error)
}

type serverFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error)
}

type userFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

// Service defines membership operations on a server.
type Service interface {
	Join(ctx context.Context, actorID, serverID uuid.UUID) (*MemberDTO, error)
	List(ctx context.Context, actorID, serverID uuid.UUID) ([]MemberDTO, error)
	UpdateNickname(ctx context.Context, actorID, serverID, targetID uuid.UUID, req UpdateMemberRequest) (*MemberDTO, error)
	Remove(ctx context.Context, actorID, serverID, targetID uuid.UUID) error
}

type service struct {
	repo    Repository
	servers serverFinder
	users   userFinder
	tx      txRunner
	outbox  outboxWriter
}

// ServiceParams bundles the dependencies required to build a members service.
type ServiceParams struct {
	Repo    Repository
	Servers serverFinder
	Users   userFinder
	Tx      txRunner
	Outbox  outboxWriter
}

// NewService constructs a members service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("members repository required")
	}
	if params.Servers == nil {
		return nil, errors.New("servers repository required")
	}
	if params.Users == nil {
		return nil, errors.New("users repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox writer required")
	}
	return &service{
		repo:    params.Repo,
		servers: params.Servers,
		users:   params.Users,
		tx:      params.Tx,
		outbox:  params.Outbox,
	}, nil
}

// Join enrolls the actor into a public server and queues the membership
// event in the same transaction.
func (s *service) Join(ctx context.Context, actorID, serverID uuid.UUID) (*MemberDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Visibility == enums.VisibilityPrivate {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
	}

	member := &models.ServerMember{
		ServerID: serverID,
		UserID:   actorID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.AddTx(ctx, tx, member); err != nil {
			if db.IsUniqueViolation(err, "ux_server_members_server_user") || db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "already a member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add member")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MemberCreated, payloads.MemberCreatedEvent{
			ServerID: serverID,
			UserID:   actorID,
			JoinedAt: member.JoinedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(member), nil
}

// List returns the server roster with usernames attached.
func (s *service) List(ctx context.Context, actorID, serverID uuid.UUID) ([]MemberDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, server, actorID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].UserID)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member users")
	}
	usernames := make(map[uuid.UUID]string, len(users))
	for i := range users {
		usernames[users[i].ID] = users[i].Username
	}

	out := make([]MemberDTO, 0, len(rows))
	for i := range rows {
		dto := FromModel(&rows[i])
		dto.Username = usernames[rows[i].UserID]
		out = append(out, *dto)
	}
	return out, nil
}

// UpdateNickname changes a member's nickname. Members manage their own;
// the server owner can manage anyone's.
func (s *service) UpdateNickname(ctx context.Context, actorID, serverID, targetID uuid.UUID, req UpdateMemberRequest) (*MemberDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if actorID != targetID && server.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot edit another member")
	}

	member, err := s.findMember(ctx, serverID, targetID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
		member.Nickname = req.Nickname
	}
	member.UpdatedAt = &now

	if err := s.repo.Update(ctx, serverID, targetID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member")
	}
	return FromModel(member), nil
}

// Remove handles both leaving and kicking. The owner cannot leave their own
// server, and only the owner can remove someone else.
func (s *service) Remove(ctx context.Context, actorID, serverID, targetID uuid.UUID) error {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return err
	}
	if targetID == server.OwnerID {
		return pkgerrors.New(pkgerrors.CodeConflict, "owner cannot leave their own server")
	}
	if actorID != targetID && server.OwnerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can remove members")
	}

	if _, err := s.findMember(ctx, serverID, targetID); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Remove(ctx, serverID, targetID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MemberDeleted, payloads.MemberDeletedEvent{
			ServerID:  serverID,
			UserID:    targetID,
			RemovedBy: actorID,
			LeftAt:    time.Now().UTC(),
		})
		return err
	})
}

func (s *service) requireViewer(ctx context.Context, server *models.Server, actorID uuid.UUID) error {
	if server.Visibility == enums.VisibilityPublic {
		return nil
	}
	member, err := s.repo.IsMember(ctx, server.ID, actorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !member {
		return pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
	}
	return nil
}

func (s *service) findServer(ctx context.Context, serverID uuid.UUID) (*models.Server, error) {
	if serverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server id required")
	}
	server, err := s.servers.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load server")
	}
	return server, nil
}

func (s *service) findMember(ctx context.Context, serverID, userID uuid.UUID) (*models.ServerMember, error) {
	member, err := s.repo.Find(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return member, nil
}
