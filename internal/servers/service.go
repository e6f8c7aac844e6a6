package servers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/outbox"
	"github.com/communityhq/communities-backend/pkg/outbox/payloads"
	"github.com/communityhq/communities-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	Write(ctx context.Context, tx *gorm.DB, desc outbox.RoutingDescriptor, payload any) (uuid.UUID, error)
}

type membersRepository interface {
	AddTx(ctx context.Context, tx *gorm.DB, member *models.ServerMember) (*models.ServerMember, error)
	IsMember(ctx context.Context, serverID, userID uuid.UUID) (bool, error)
}

// Service defines server-level operations.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, req CreateServerRequest) (*ServerDTO, error)
	Get(ctx context.Context, actorID, serverID uuid.UUID) (*ServerDTO, error)
	ListMine(ctx context.Context, actorID uuid.UUID) ([]ServerDTO, error)
	Discover(ctx context.Context, params pagination.Params) (*ServerList, error)
	Update(ctx context.Context, actorID, serverID uuid.UUID, req UpdateServerRequest) (*ServerDTO, error)
	Delete(ctx context.Context, actorID, serverID uuid.UUID) error
}

type service struct {
	repo    Repository
	members membersRepository
	tx      txRunner
	outbox  outboxWriter
}

// NewService builds a servers service with the required dependencies.
func NewService(repo Repository, members membersRepository, tx txRunner, writer outboxWriter) (Service, error) {
	if repo == nil {
		return nil, errors.New("servers repository required")
	}
	if members == nil {
		return nil, errors.New("members repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if writer == nil {
		return nil, errors.New("outbox writer required")
	}
	return &service{repo: repo, members: members, tx: tx, outbox: writer}, nil
}

// Create persists the server, enrolls the owner as its first member, and
// queues the creation event, all in one transaction.
func (s *service) Create(ctx context.Context, actorID uuid.UUID, req CreateServerRequest) (*ServerDTO, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	visibility := enums.VisibilityPublic
	if req.Visibility != "" {
		parsed, err := enums.ParseVisibility(req.Visibility)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid visibility")
		}
		visibility = parsed
	}

	server := &models.Server{
		Name:        req.Name,
		Description: req.Description,
		PictureURL:  req.PictureURL,
		BannerURL:   req.BannerURL,
		OwnerID:     actorID,
		Visibility:  visibility,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, server); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create server")
		}
		member := &models.ServerMember{
			ServerID: server.ID,
			UserID:   actorID,
		}
		if _, err := s.members.AddTx(ctx, tx, member); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll owner")
		}
		if _, err := s.outbox.Write(ctx, tx, outbox.ServerCreated, payloads.ServerCreatedEvent{
			ServerID:  server.ID,
			OwnerID:   actorID,
			Name:      server.Name,
			CreatedAt: server.CreatedAt,
		}); err != nil {
			return err
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MemberCreated, payloads.MemberCreatedEvent{
			ServerID: server.ID,
			UserID:   actorID,
			JoinedAt: member.JoinedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(server), nil
}

func (s *service) Get(ctx context.Context, actorID, serverID uuid.UUID) (*ServerDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Visibility == enums.VisibilityPrivate {
		member, err := s.members.IsMember(ctx, serverID, actorID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
		}
		if !member {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
	}
	return FromModel(server), nil
}

func (s *service) ListMine(ctx context.Context, actorID uuid.UUID) ([]ServerDTO, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByMember(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list servers")
	}
	return fromModels(rows), nil
}

func (s *service) Discover(ctx context.Context, params pagination.Params) (*ServerList, error) {
	rows, err := s.repo.ListPublic(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list public servers")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		nextCursor = &cursor
	}
	return &ServerList{Servers: fromModels(rows), NextCursor: nextCursor}, nil
}

func (s *service) Update(ctx context.Context, actorID, serverID uuid.UUID, req UpdateServerRequest) (*ServerDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can update a server")
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		updates["name"] = *req.Name
		server.Name = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
		server.Description = req.Description
	}
	if req.Visibility != nil {
		parsed, err := enums.ParseVisibility(*req.Visibility)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid visibility")
		}
		updates["visibility"] = parsed
		server.Visibility = parsed
	}
	if req.PictureURL != nil {
		updates["picture_url"] = *req.PictureURL
		server.PictureURL = req.PictureURL
	}
	if req.BannerURL != nil {
		updates["banner_url"] = *req.BannerURL
		server.BannerURL = req.BannerURL
	}

	if err := s.repo.Update(ctx, serverID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update server")
	}
	return FromModel(server), nil
}

// Delete removes the server and queues the deletion event in one
// transaction. Channel, message, and membership rows cascade in the
// database.
func (s *service) Delete(ctx context.Context, actorID, serverID uuid.UUID) error {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return err
	}
	if server.OwnerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete a server")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Delete(ctx, serverID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete server")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.ServerDeleted, payloads.ServerDeletedEvent{
			ServerID:  serverID,
			OwnerID:   actorID,
			DeletedAt: time.Now().UTC(),
		})
		return err
	})
}

func (s *service) findServer(ctx context.Context, serverID uuid.UUID) (*models.Server, error) {
	if serverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server id required")
	}
	server, err := s.repo.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load server")
	}
	return server, nil
}
