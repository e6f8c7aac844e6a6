package messages

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

type channelFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
}

type serverFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error)
}

type membershipChecker interface {
	IsMember(ctx context.Context, serverID, userID uuid.UUID) (bool, error)
}

// Service defines message operations within a channel.
type Service interface {
	Create(ctx context.Context, actorID, channelID uuid.UUID, req CreateMessageRequest) (*MessageDTO, error)
	Get(ctx context.Context, actorID, messageID uuid.UUID) (*MessageDTO, error)
	List(ctx context.Context, actorID, channelID uuid.UUID, params pagination.Params) (*MessageList, error)
	Update(ctx context.Context, actorID, messageID uuid.UUID, req UpdateMessageRequest) (*MessageDTO, error)
	Delete(ctx context.Context, actorID, messageID uuid.UUID) error
}

type service struct {
	repo     Repository
	channels channelFinder
	servers  serverFinder
	members  membershipChecker
	tx       txRunner
	outbox   outboxWriter
}

// ServiceParams bundles the dependencies required to build a messages service.
type ServiceParams struct {
	Repo     Repository
	Channels channelFinder
	Servers  serverFinder
	Members  membershipChecker
	Tx       txRunner
	Outbox   outboxWriter
}

// NewService constructs a messages service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("messages repository required")
	}
	if params.Channels == nil {
		return nil, errors.New("channels repository required")
	}
	if params.Servers == nil {
		return nil, errors.New("servers repository required")
	}
	if params.Members == nil {
		return nil, errors.New("members repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox writer required")
	}
	return &service{
		repo:     params.Repo,
		channels: params.Channels,
		servers:  params.Servers,
		members:  params.Members,
		tx:       params.Tx,
		outbox:   params.Outbox,
	}, nil
}

// Create posts a message and queues the creation event in one transaction.
// Members only.
func (s *service) Create(ctx context.Context, actorID, channelID uuid.UUID, req CreateMessageRequest) (*MessageDTO, error) {
	channel, server, err := s.resolveChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, server, actorID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ChannelID:        channelID,
		AuthorID:         actorID,
		Content:          req.Content,
		ReplyToMessageID: req.ReplyToMessageID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create message")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MessageCreated, payloads.MessageCreatedEvent{
			MessageID: message.ID,
			ChannelID: channelID,
			ServerID:  channel.ServerID,
			AuthorID:  actorID,
			Content:   message.Content,
			ReplyToID: message.ReplyToMessageID,
			CreatedAt: message.CreatedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(message), nil
}

func (s *service) Get(ctx context.Context, actorID, messageID uuid.UUID) (*MessageDTO, error) {
	message, _, server, err := s.resolveMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, server, actorID); err != nil {
		return nil, err
	}
	return FromModel(message), nil
}

// List pages the channel history newest first.
func (s *service) List(ctx context.Context, actorID, channelID uuid.UUID, params pagination.Params) (*MessageList, error) {
	_, server, err := s.resolveChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, server, actorID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByChannel(ctx, channelID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		nextCursor = &cursor
	}
	return &MessageList{Messages: fromModels(rows), NextCursor: nextCursor}, nil
}

// Update edits the content (author only) or toggles the pin (owner only),
// queueing the update event with the final content.
func (s *service) Update(ctx context.Context, actorID, messageID uuid.UUID, req UpdateMessageRequest) (*MessageDTO, error) {
	message, channel, server, err := s.resolveMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if req.Content != nil && message.AuthorID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the author can edit a message")
	}
	if req.Pinned != nil && server.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can pin messages")
	}
	if req.Content == nil && req.Pinned == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	if req.Content != nil {
		updates["content"] = *req.Content
		message.Content = *req.Content
	}
	if req.Pinned != nil {
		updates["pinned"] = *req.Pinned
		message.Pinned = *req.Pinned
	}
	message.UpdatedAt = &now

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, messageID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update message")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MessageUpdated, payloads.MessageUpdatedEvent{
			MessageID: messageID,
			ChannelID: channel.ID,
			ServerID:  channel.ServerID,
			AuthorID:  message.AuthorID,
			Content:   message.Content,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(message), nil
}

// Delete removes a message. The author or the server owner may delete.
func (s *service) Delete(ctx context.Context, actorID, messageID uuid.UUID) error {
	message, channel, server, err := s.resolveMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.AuthorID != actorID && server.OwnerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the author or the owner can delete a message")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Delete(ctx, messageID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete message")
		}
		_, err := s.outbox.Write(ctx, tx, outbox.MessageDeleted, payloads.MessageDeletedEvent{
			MessageID: messageID,
			ChannelID: channel.ID,
			ServerID:  channel.ServerID,
			DeletedBy: actorID,
			DeletedAt: time.Now().UTC(),
		})
		return err
	})
}

func (s *service) requireMember(ctx context.Context, server *models.Server, actorID uuid.UUID) error {
	member, err := s.members.IsMember(ctx, server.ID, actorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !member {
		return pkgerrors.New(pkgerrors.CodeForbidden, "membership required")
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
		return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
	}
	return nil
}

func (s *service) resolveMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, *models.Channel, *models.Server, error) {
	if messageID == uuid.Nil {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "message id required")
	}
	message, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
		}
		return nil, nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load message")
	}
	channel, server, err := s.resolveChannel(ctx, message.ChannelID)
	if err != nil {
		return nil, nil, nil, err
	}
	return message, channel, server, nil
}

func (s *service) resolveChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, *models.Server, error) {
	if channelID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}
	server, err := s.servers.FindByID(ctx, channel.ServerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load server")
	}
	return channel, server, nil
}
