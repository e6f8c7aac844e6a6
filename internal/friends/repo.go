package friends

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// NormalizePair orders two user IDs so the smaller one comes first, matching
// the friendships table invariant user_id_1 < user_id_2.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

// Repository defines persistence operations for friendships and requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateFriendship(ctx context.Context, userA, userB uuid.UUID) (*models.Friendship, error)
	DeleteFriendship(ctx context.Context, userA, userB uuid.UUID) (bool, error)
	AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error)
	ListFriendships(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error)
	CreateRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (*models.FriendRequest, error)
	FindRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (*models.FriendRequest, error)
	DeleteRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (bool, error)
	ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a friends repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateFriendship(ctx context.Context, userA, userB uuid.UUID) (*models.Friendship, error) {
	first, second := NormalizePair(userA, userB)
	friendship := &models.Friendship{UserID1: first, UserID2: second}
	if err := r.db.WithContext(ctx).Create(friendship).Error; err != nil {
		return nil, err
	}
	return friendship, nil
}

func (r *repository) DeleteFriendship(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	first, second := NormalizePair(userA, userB)
	result := r.db.WithContext(ctx).
		Where("user_id_1 = ? AND user_id_2 = ?", first, second).
		Delete(&models.Friendship{})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	first, second := NormalizePair(userA, userB)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("user_id_1 = ? AND user_id_2 = ?", first, second).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListFriendships(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error) {
	var rows []models.Friendship
	err := r.db.WithContext(ctx).
		Where("user_id_1 = ? OR user_id_2 = ?", userID, userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (*models.FriendRequest, error) {
	request := &models.FriendRequest{RequesterID: requesterID, InvitedID: invitedID}
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

func (r *repository) FindRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND invited_id = ?", requesterID, invitedID).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) DeleteRequest(ctx context.Context, requesterID, invitedID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("requester_id = ? AND invited_id = ?", requesterID, invitedID).
		Delete(&models.FriendRequest{})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	var rows []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? OR invited_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
