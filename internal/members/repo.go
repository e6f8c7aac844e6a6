package members

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// Repository defines persistence operations for server memberships.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Add(ctx context.Context, member *models.ServerMember) (*models.ServerMember, error)
	AddTx(ctx context.Context, tx *gorm.DB, member *models.ServerMember) (*models.ServerMember, error)
	Find(ctx context.Context, serverID, userID uuid.UUID) (*models.ServerMember, error)
	IsMember(ctx context.Context, serverID, userID uuid.UUID) (bool, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.ServerMember, error)
	Update(ctx context.Context, serverID, userID uuid.UUID, updates map[string]any) error
	Remove(ctx context.Context, serverID, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a members repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Add(ctx context.Context, member *models.ServerMember) (*models.ServerMember, error) {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

// AddTx inserts the membership on the provided transaction, falling back to
// the bound DB when tx is nil.
func (r *repository) AddTx(ctx context.Context, tx *gorm.DB, member *models.ServerMember) (*models.ServerMember, error) {
	return r.WithTx(tx).Add(ctx, member)
}

func (r *repository) Find(ctx context.Context, serverID, userID uuid.UUID) (*models.ServerMember, error) {
	var member models.ServerMember
	err := r.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) IsMember(ctx context.Context, serverID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.ServerMember, error) {
	var rows []models.ServerMember
	err := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("joined_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, serverID, userID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Updates(updates).Error
}

func (r *repository) Remove(ctx context.Context, serverID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Delete(&models.ServerMember{}).Error
}
