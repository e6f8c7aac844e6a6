package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	apperrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/logger"
)

// Writer queues domain events alongside the business mutation that
// produced them. Callers pass the open transaction so the row commits or
// rolls back with the rest of the change.
type Writer struct {
	store Storage
	logg  *logger.Logger
}

func NewWriter(store Storage, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg}
}

// Write serializes payload and inserts a READY row for the descriptor.
// The generated row ID is returned and doubles as the idempotency key;
// replaying the same ID is a no-op.
func (w *Writer) Write(ctx context.Context, tx *gorm.DB, desc RoutingDescriptor, payload any) (uuid.UUID, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := desc.Validate(); err != nil {
		return uuid.Nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.CodeSerialization, err, "payload could not be serialized")
	}
	row := models.OutboxMessage{
		ID:           uuid.New(),
		ExchangeName: desc.Exchange,
		RoutingKey:   desc.RoutingKey,
		Payload:      json.RawMessage(body),
		Status:       enums.OutboxStatusReady,
	}
	store := w.store
	if tx != nil {
		store = w.store.WithTx(tx)
	}
	if err := store.InsertIfAbsent(ctx, &row); err != nil {
		return uuid.Nil, err
	}
	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"outbox_id":   row.ID.String(),
			"exchange":    row.ExchangeName,
			"routing_key": row.RoutingKey,
		})
		w.logg.Info(logCtx, "outbox event queued")
	}
	return row.ID, nil
}
