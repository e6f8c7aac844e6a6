package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
)

// Storage persists outbox rows and drives their status transitions.
// The GORM adapter backs production; the in-memory adapter backs tests.
type Storage interface {
	// WithTx returns a Storage bound to the given transaction so a row
	// can be inserted atomically with the business mutation. Adapters
	// without transactional backends return themselves.
	WithTx(tx *gorm.DB) Storage

	// InsertIfAbsent creates the row unless one with the same ID already
	// exists, in which case it is a no-op.
	InsertIfAbsent(ctx context.Context, row *models.OutboxMessage) error

	// ScanReady returns up to limit rows eligible for publishing, oldest
	// first: READY rows plus FAILED rows whose next attempt time has
	// passed.
	ScanReady(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)

	// MarkSent finalizes a row after the broker confirmed delivery.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a failed publish attempt and schedules the next
	// one. It bumps attempt_count and stamps failed_at.
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, nextAttemptAt time.Time) error

	// MarkDead retires a row that exhausted its attempts. Dead rows are
	// never scanned again.
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error
}
