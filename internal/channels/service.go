package channels

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
)

type serverFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error)
}

type membershipChecker interface {
	IsMember(ctx context.Context, serverID, userID uuid.UUID) (bool, error)
}

// Service defines channel operations within a server.
type Service interface {
	Create(ctx context.Context, actorID, serverID uuid.UUID, req CreateChannelRequest) (*ChannelDTO, error)
	List(ctx context.Context, actorID, serverID uuid.UUID) ([]ChannelDTO, error)
	Get(ctx context.Context, actorID, channelID uuid.UUID) (*ChannelDTO, error)
	Update(ctx context.Context, actorID, channelID uuid.UUID, req UpdateChannelRequest) (*ChannelDTO, error)
	Delete(ctx context.Context, actorID, channelID uuid.UUID) error
}

type service struct {
	repo    Repository
	servers serverFinder
	members membershipChecker
}

// NewService builds a channels service with the required dependencies.
func NewService(repo Repository, servers serverFinder, members membershipChecker) (Service, error) {
	if repo == nil {
		return nil, errors.New("channels repository required")
	}
	if servers == nil {
		return nil, errors.New("servers repository required")
	}
	if members == nil {
		return nil, errors.New("members repository required")
	}
	return &service{repo: repo, servers: servers, members: members}, nil
}

// Create adds a channel to the server. Owner only.
func (s *service) Create(ctx context.Context, actorID, serverID uuid.UUID, req CreateChannelRequest) (*ChannelDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can create channels")
	}

	channel := &models.Channel{
		ServerID: serverID,
		Name:     req.Name,
		Topic:    req.Topic,
	}
	if _, err := s.repo.Create(ctx, channel); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create channel")
	}
	return FromModel(channel), nil
}

func (s *service) List(ctx context.Context, actorID, serverID uuid.UUID) ([]ChannelDTO, error) {
	server, err := s.findServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, server, actorID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list channels")
	}
	return fromModels(rows), nil
}

func (s *service) Get(ctx context.Context, actorID, channelID uuid.UUID) (*ChannelDTO, error) {
	channel, err := s.findChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	server, err := s.findServer(ctx, channel.ServerID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, server, actorID); err != nil {
		return nil, err
	}
	return FromModel(channel), nil
}

// Update renames or retopics a channel. Owner only.
func (s *service) Update(ctx context.Context, actorID, channelID uuid.UUID, req UpdateChannelRequest) (*ChannelDTO, error) {
	channel, server, err := s.findChannelWithServer(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if server.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can update channels")
	}

	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	if req.Name != nil {
		updates["name"] = *req.Name
		channel.Name = *req.Name
	}
	if req.Topic != nil {
		updates["topic"] = *req.Topic
		channel.Topic = req.Topic
	}
	channel.UpdatedAt = &now

	if err := s.repo.Update(ctx, channelID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update channel")
	}
	return FromModel(channel), nil
}

// Delete removes a channel and its messages (cascade). Owner only.
func (s *service) Delete(ctx context.Context, actorID, channelID uuid.UUID) error {
	_, server, err := s.findChannelWithServer(ctx, channelID)
	if err != nil {
		return err
	}
	if server.OwnerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete channels")
	}
	if err := s.repo.Delete(ctx, channelID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete channel")
	}
	return nil
}

func (s *service) requireViewer(ctx context.Context, server *models.Server, actorID uuid.UUID) error {
	if server.Visibility == enums.VisibilityPublic {
		return nil
	}
	member, err := s.members.IsMember(ctx, server.ID, actorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !member {
		return pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
	}
	return nil
}

func (s *service) findChannelWithServer(ctx context.Context, channelID uuid.UUID) (*models.Channel, *models.Server, error) {
	channel, err := s.findChannel(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	server, err := s.findServer(ctx, channel.ServerID)
	if err != nil {
		return nil, nil, err
	}
	return channel, server, nil
}

func (s *service) findChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	if channelID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	channel, err := s.repo.FindByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}
	return channel, nil
}

func (s *service) findServer(ctx context.Context, serverID uuid.UUID) (*models.Server, error) {
	server, err := s.servers.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load server")
	}
	return server, nil
}
