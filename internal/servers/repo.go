package servers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	"github.com/communityhq/communities-backend/pkg/pagination"
)

// Repository defines persistence operations for servers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, server *models.Server) (*models.Server, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error)
	ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Server, error)
	ListPublic(ctx context.Context, params pagination.Params) ([]models.Server, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a servers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, server *models.Server) (*models.Server, error) {
	if err := r.db.WithContext(ctx).Create(server).Error; err != nil {
		return nil, err
	}
	return server, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *repository) ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Server, error) {
	var rows []models.Server
	err := r.db.WithContext(ctx).
		Joins("JOIN server_members ON server_members.server_id = servers.id").
		Where("server_members.user_id = ?", userID).
		Order("servers.created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPublic(ctx context.Context, params pagination.Params) ([]models.Server, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).
		Where("visibility = ?", enums.VisibilityPublic).
		Order("created_at ASC").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Server
	err = query.Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Server{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Server{}, "id = ?", id).Error
}
