package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	apperrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/outbox/payloads"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	outboxMessages := `
CREATE TABLE IF NOT EXISTS outbox_messages (
  id TEXT PRIMARY KEY,
  exchange_name TEXT NOT NULL,
  routing_key TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'READY',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  next_attempt_at DATETIME,
  created_at DATETIME,
  failed_at DATETIME
);`
	servers := `
CREATE TABLE IF NOT EXISTS servers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  picture_url TEXT,
  banner_url TEXT,
  owner_id TEXT NOT NULL,
  visibility TEXT NOT NULL DEFAULT 'public',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(outboxMessages).Error)
	require.NoError(t, db.Exec(servers).Error)

	return db
}

func TestWriterWriteCommitsWithBusinessRow(t *testing.T) {
	db := setupOutboxTestDB(t)
	writer := NewWriter(NewGormStore(db), nil)

	server := models.Server{
		ID:      uuid.New(),
		Name:    "gophers",
		OwnerID: uuid.New(),
	}
	var rowID uuid.UUID
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&server).Error; err != nil {
			return err
		}
		id, err := writer.Write(context.Background(), tx, ServerCreated, payloads.ServerCreatedEvent{
			ServerID:  server.ID,
			OwnerID:   server.OwnerID,
			Name:      server.Name,
			CreatedAt: time.Now(),
		})
		rowID = id
		return err
	})
	require.NoError(t, err)

	var row models.OutboxMessage
	require.NoError(t, db.First(&row, "id = ?", rowID).Error)
	assert.Equal(t, enums.OutboxStatusReady, row.Status)
	assert.Equal(t, NotificationsExchange, row.ExchangeName)
	assert.Equal(t, "server.created", row.RoutingKey)
	assert.Equal(t, 0, row.AttemptCount)

	var event payloads.ServerCreatedEvent
	require.NoError(t, json.Unmarshal(row.Payload, &event))
	assert.Equal(t, server.ID, event.ServerID)
	assert.Equal(t, "gophers", event.Name)
}

func TestWriterWriteRollsBackWithBusinessRow(t *testing.T) {
	db := setupOutboxTestDB(t)
	writer := NewWriter(NewGormStore(db), nil)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		server := models.Server{ID: uuid.New(), Name: "doomed", OwnerID: uuid.New()}
		if err := tx.Create(&server).Error; err != nil {
			return err
		}
		if _, err := writer.Write(context.Background(), tx, ServerCreated, payloads.ServerCreatedEvent{
			ServerID: server.ID,
			OwnerID:  server.OwnerID,
			Name:     server.Name,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var outboxCount, serverCount int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Count(&outboxCount).Error)
	require.NoError(t, db.Model(&models.Server{}).Count(&serverCount).Error)
	assert.Zero(t, outboxCount)
	assert.Zero(t, serverCount)
}

func TestWriterWriteRejectsUnserializablePayload(t *testing.T) {
	db := setupOutboxTestDB(t)
	writer := NewWriter(NewGormStore(db), nil)

	_, err := writer.Write(context.Background(), nil, MessageCreated, make(chan int))
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeSerialization, appErr.Code())

	var count int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormStoreInsertIfAbsentIsIdempotent(t *testing.T) {
	db := setupOutboxTestDB(t)
	store := NewGormStore(db)

	row := models.OutboxMessage{
		ID:           uuid.New(),
		ExchangeName: NotificationsExchange,
		RoutingKey:   "message.created",
		Payload:      json.RawMessage(`{"a":1}`),
		Status:       enums.OutboxStatusReady,
	}
	require.NoError(t, store.InsertIfAbsent(context.Background(), &row))

	replay := row
	replay.Payload = json.RawMessage(`{"a":2}`)
	require.NoError(t, store.InsertIfAbsent(context.Background(), &replay))

	var rows []models.OutboxMessage
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"a":1}`, string(rows[0].Payload))
}

func TestGormStoreScanReadyOrderingAndEligibility(t *testing.T) {
	db := setupOutboxTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	rows := []models.OutboxMessage{
		{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusReady, CreatedAt: now.Add(-4 * time.Minute)},
		{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusSent, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusFailed, NextAttemptAt: &past, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusFailed, NextAttemptAt: &future, CreatedAt: now.Add(-time.Minute)},
		{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusReady, CreatedAt: now},
	}
	for i := range rows {
		require.NoError(t, store.InsertIfAbsent(ctx, &rows[i]))
	}

	got, err := store.ScanReady(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rows[0].ID, got[0].ID)
	assert.Equal(t, rows[2].ID, got[1].ID)
	assert.Equal(t, rows[4].ID, got[2].ID)

	limited, err := store.ScanReady(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, rows[0].ID, limited[0].ID)
	assert.Equal(t, rows[2].ID, limited[1].ID)
}

func TestGormStoreStatusTransitions(t *testing.T) {
	db := setupOutboxTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	row := models.OutboxMessage{
		ID:           uuid.New(),
		ExchangeName: NotificationsExchange,
		RoutingKey:   "member.created",
		Payload:      json.RawMessage(`{}`),
		Status:       enums.OutboxStatusReady,
	}
	require.NoError(t, store.InsertIfAbsent(ctx, &row))

	next := time.Now().Add(5 * time.Second)
	require.NoError(t, store.MarkFailed(ctx, row.ID, errors.New("broker unavailable"), next))

	var failed models.OutboxMessage
	require.NoError(t, db.First(&failed, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "broker unavailable", *failed.LastError)
	require.NotNil(t, failed.NextAttemptAt)
	require.NotNil(t, failed.FailedAt)

	require.NoError(t, store.MarkDead(ctx, row.ID, errors.New("attempts exhausted")))

	var dead models.OutboxMessage
	require.NoError(t, db.First(&dead, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusDead, dead.Status)
	assert.Equal(t, 2, dead.AttemptCount)
	assert.Nil(t, dead.NextAttemptAt)
	assert.True(t, dead.Status.IsTerminal())

	require.NoError(t, store.MarkSent(ctx, row.ID))
	var sent models.OutboxMessage
	require.NoError(t, db.First(&sent, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusSent, sent.Status)
}

func TestMemStoreMirrorsScanSemantics(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	now := time.Now()

	ready := models.OutboxMessage{ID: uuid.New(), ExchangeName: NotificationsExchange, RoutingKey: "message.created", Payload: json.RawMessage(`{}`), Status: enums.OutboxStatusReady, CreatedAt: now.Add(-time.Minute)}
	require.NoError(t, store.InsertIfAbsent(ctx, &ready))
	require.NoError(t, store.InsertIfAbsent(ctx, &ready))

	got, err := store.ScanReady(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, store.MarkFailed(ctx, ready.ID, errors.New("nope"), now.Add(time.Hour)))
	got, err = store.ScanReady(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.MarkFailed(ctx, ready.ID, errors.New("nope"), now.Add(-time.Second)))
	got, err = store.ScanReady(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].AttemptCount)

	require.NoError(t, store.MarkDead(ctx, ready.ID, errors.New("done")))
	got, err = store.ScanReady(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	row, ok := store.Get(ready.ID)
	require.True(t, ok)
	assert.Equal(t, enums.OutboxStatusDead, row.Status)
	assert.Equal(t, 3, row.AttemptCount)
}
