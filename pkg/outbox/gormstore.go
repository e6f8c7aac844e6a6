package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
)

const maxStoredErrorLen = 1024

// GormStore is the relational Storage adapter.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(tx *gorm.DB) Storage {
	if tx == nil {
		return s
	}
	return &GormStore{db: tx}
}

func (s *GormStore) InsertIfAbsent(ctx context.Context, row *models.OutboxMessage) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (s *GormStore) ScanReady(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	var rows []models.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusReady).
		Or("status = ? AND next_attempt_at <= ?", enums.OutboxStatusFailed, now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": enums.OutboxStatusSent,
		}).Error
}

func (s *GormStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error, nextAttemptAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.OutboxStatusFailed,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      truncateError(cause),
			"next_attempt_at": nextAttemptAt,
			"failed_at":       time.Now(),
		}).Error
}

func (s *GormStore) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	return s.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.OutboxStatusDead,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      truncateError(cause),
			"next_attempt_at": nil,
			"failed_at":       time.Now(),
		}).Error
}

// DeleteFinalizedBefore purges rows that reached a terminal status (sent
// or dead) before the cutoff. Used by the retention job; not part of the
// relay's Storage contract.
func (s *GormStore) DeleteFinalizedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := s.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("status IN ?", []enums.OutboxStatus{enums.OutboxStatusSent, enums.OutboxStatusDead}).
		Where("created_at < ?", cutoff).
		Delete(&models.OutboxMessage{})
	return res.RowsAffected, res.Error
}

func truncateError(cause error) string {
	if cause == nil {
		return ""
	}
	msg := cause.Error()
	if len(msg) <= maxStoredErrorLen {
		return msg
	}
	return msg[:maxStoredErrorLen]
}
