package channels

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// Repository defines persistence operations for channels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, channel *models.Channel) (*models.Channel, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.Channel, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a channels repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, channel *models.Channel) (*models.Channel, error) {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		return nil, err
	}
	return channel, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.Channel, error) {
	var rows []models.Channel
	err := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Channel{}, "id = ?", id).Error
}
