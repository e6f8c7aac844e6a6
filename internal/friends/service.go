package friends

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db"
	"github.com/communityhq/communities-backend/pkg/db/models"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

// Service defines friendship operations.
type Service interface {
	SendRequest(ctx context.Context, actorID uuid.UUID, req SendRequestDTO) (*FriendRequestDTO, error)
	AcceptRequest(ctx context.Context, actorID, requesterID uuid.UUID) (*FriendDTO, error)
	DeclineRequest(ctx context.Context, actorID, requesterID uuid.UUID) error
	CancelRequest(ctx context.Context, actorID, invitedID uuid.UUID) error
	ListRequests(ctx context.Context, actorID uuid.UUID) (*RequestsDTO, error)
	ListFriends(ctx context.Context, actorID uuid.UUID) ([]FriendDTO, error)
	RemoveFriend(ctx context.Context, actorID, friendID uuid.UUID) error
}

type service struct {
	repo  Repository
	users userFinder
	tx    txRunner
}

// NewService builds a friends service with the required dependencies.
func NewService(repo Repository, users userFinder, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, errors.New("friends repository required")
	}
	if users == nil {
		return nil, errors.New("users repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	return &service{repo: repo, users: users, tx: tx}, nil
}

// SendRequest invites another user. Sending to an existing friend or to
// yourself is rejected, and a pending inverse request is accepted instead
// of creating a crossing pair.
func (s *service) SendRequest(ctx context.Context, actorID uuid.UUID, req SendRequestDTO) (*FriendRequestDTO, error) {
	if req.UserID == actorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot befriend yourself")
	}
	target, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	friends, err := s.repo.AreFriends(ctx, actorID, target.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check friendship")
	}
	if friends {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already friends")
	}

	if _, err := s.repo.FindRequest(ctx, target.ID, actorID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "this user already invited you")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check inverse request")
	}

	request, err := s.repo.CreateRequest(ctx, actorID, target.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "request already sent")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create request")
	}
	return &FriendRequestDTO{
		RequesterID: request.RequesterID,
		InvitedID:   request.InvitedID,
		Username:    target.Username,
		CreatedAt:   request.CreatedAt,
	}, nil
}

// AcceptRequest consumes the pending request and records the friendship in
// one transaction.
func (s *service) AcceptRequest(ctx context.Context, actorID, requesterID uuid.UUID) (*FriendDTO, error) {
	requester, err := s.findUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	var friendship *models.Friendship
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		removed, err := repo.DeleteRequest(ctx, requesterID, actorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume request")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "friend request not found")
		}
		friendship, err = repo.CreateFriendship(ctx, actorID, requesterID)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "already friends")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create friendship")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &FriendDTO{
		UserID:   requesterID,
		Username: requester.Username,
		Since:    friendship.CreatedAt,
	}, nil
}

func (s *service) DeclineRequest(ctx context.Context, actorID, requesterID uuid.UUID) error {
	return s.dropRequest(ctx, requesterID, actorID)
}

// CancelRequest withdraws a request the actor sent earlier.
func (s *service) CancelRequest(ctx context.Context, actorID, invitedID uuid.UUID) error {
	return s.dropRequest(ctx, actorID, invitedID)
}

func (s *service) ListRequests(ctx context.Context, actorID uuid.UUID) (*RequestsDTO, error) {
	rows, err := s.repo.ListRequests(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list requests")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		other := rows[i].RequesterID
		if other == actorID {
			other = rows[i].InvitedID
		}
		ids = append(ids, other)
	}
	usernames, err := s.usernamesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &RequestsDTO{Incoming: []FriendRequestDTO{}, Outgoing: []FriendRequestDTO{}}
	for i := range rows {
		dto := FriendRequestDTO{
			RequesterID: rows[i].RequesterID,
			InvitedID:   rows[i].InvitedID,
			CreatedAt:   rows[i].CreatedAt,
		}
		if rows[i].InvitedID == actorID {
			dto.Username = usernames[rows[i].RequesterID]
			out.Incoming = append(out.Incoming, dto)
		} else {
			dto.Username = usernames[rows[i].InvitedID]
			out.Outgoing = append(out.Outgoing, dto)
		}
	}
	return out, nil
}

func (s *service) ListFriends(ctx context.Context, actorID uuid.UUID) ([]FriendDTO, error) {
	rows, err := s.repo.ListFriendships(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list friendships")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		other := rows[i].UserID1
		if other == actorID {
			other = rows[i].UserID2
		}
		ids = append(ids, other)
	}
	usernames, err := s.usernamesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]FriendDTO, 0, len(rows))
	for i := range rows {
		other := rows[i].UserID1
		if other == actorID {
			other = rows[i].UserID2
		}
		out = append(out, FriendDTO{
			UserID:   other,
			Username: usernames[other],
			Since:    rows[i].CreatedAt,
		})
	}
	return out, nil
}

func (s *service) RemoveFriend(ctx context.Context, actorID, friendID uuid.UUID) error {
	removed, err := s.repo.DeleteFriendship(ctx, actorID, friendID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete friendship")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "friendship not found")
	}
	return nil
}

func (s *service) dropRequest(ctx context.Context, requesterID, invitedID uuid.UUID) error {
	removed, err := s.repo.DeleteRequest(ctx, requesterID, invitedID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete request")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "friend request not found")
	}
	return nil
}

func (s *service) usernamesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load users")
	}
	out := make(map[uuid.UUID]string, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Username
	}
	return out, nil
}

func (s *service) findUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
