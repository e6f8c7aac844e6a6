package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/config"
	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	"github.com/communityhq/communities-backend/pkg/logger"
	"github.com/communityhq/communities-backend/pkg/outbox"
)

type fakeStorage struct {
	mu      sync.Mutex
	rows    []models.OutboxMessage
	scanErr error
	markErr error

	sent   []uuid.UUID
	failed []uuid.UUID
	dead   []uuid.UUID

	failedAt []time.Time
}

func (f *fakeStorage) ScanReady(_ context.Context, _ time.Time, limit int) ([]models.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	rows := f.rows
	f.rows = nil
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStorage) MarkSent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStorage) MarkFailed(_ context.Context, id uuid.UUID, _ error, nextAttemptAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.failed = append(f.failed, id)
	f.failedAt = append(f.failedAt, nextAttemptAt)
	return nil
}

func (f *fakeStorage) MarkDead(_ context.Context, id uuid.UUID, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.dead = append(f.dead, id)
	return nil
}

type fakePublisher struct {
	mu          sync.Mutex
	connectErr  error
	declareErr  error
	down        bool
	publishErr  []error
	published   []string
	declared    []string
	calls       int
	ensureCalls int
}

func (f *fakePublisher) EnsureConnected(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.down = false
	return nil
}

func (f *fakePublisher) DeclareExchange(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return f.declareErr
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) Publish(_ context.Context, _, routingKey string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection closed")
	}
	call := f.calls
	f.calls++
	if call < len(f.publishErr) && f.publishErr[call] != nil {
		return f.publishErr[call]
	}
	f.published = append(f.published, routingKey)
	return nil
}

func newTestService(t *testing.T, storage outboxStorage, pub brokerPublisher, mutate func(*config.Config)) *Service {
	t.Helper()
	cfg := &config.Config{
		Outbox: config.OutboxConfig{
			BatchSize:      10,
			PollIntervalMS: 1,
			MaxAttempts:    3,
			RetryBackoff:   time.Second,
			MaxBackoff:     time.Minute,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	logg := logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		Storage:   storage,
		Publisher: pub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func testRow(routingKey string, attemptCount int) models.OutboxMessage {
	return models.OutboxMessage{
		ID:           uuid.New(),
		ExchangeName: outbox.NotificationsExchange,
		RoutingKey:   routingKey,
		Payload:      json.RawMessage(`{}`),
		Status:       enums.OutboxStatusReady,
		AttemptCount: attemptCount,
		CreatedAt:    time.Now(),
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	rows := []models.OutboxMessage{
		testRow("message.created", 0),
		testRow("message.updated", 0),
	}
	storage := &fakeStorage{rows: rows}
	pub := &fakePublisher{publishErr: []error{errors.New("transient"), nil}}
	service := newTestService(t, storage, pub, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(storage.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if storage.failed[0] != rows[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if got := len(storage.sent); got != 1 {
		t.Fatalf("unexpected number of sent rows: %d", got)
	}
	if storage.sent[0] != rows[1].ID {
		t.Fatalf("sent row recorded wrong ID")
	}
}

func TestServiceMarksSentOnConfirmedPublish(t *testing.T) {
	row := testRow("server.created", 0)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	pub := &fakePublisher{}
	service := newTestService(t, storage, pub, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(pub.published) != 1 || pub.published[0] != "server.created" {
		t.Fatalf("unexpected publishes: %v", pub.published)
	}
	if len(storage.sent) != 1 || storage.sent[0] != row.ID {
		t.Fatalf("expected row marked sent")
	}
	if len(storage.failed) != 0 || len(storage.dead) != 0 {
		t.Fatalf("unexpected failure marks")
	}
}

func TestServiceRetiresRowAfterMaxAttempts(t *testing.T) {
	row := testRow("member.created", 2)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	pub := &fakePublisher{publishErr: []error{errors.New("still down")}}
	service := newTestService(t, storage, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(storage.dead) != 1 || storage.dead[0] != row.ID {
		t.Fatalf("expected row marked dead, got dead=%v failed=%v", storage.dead, storage.failed)
	}
	if len(storage.failed) != 0 {
		t.Fatalf("row should not be rescheduled once retired")
	}
}

func TestServiceSchedulesRetryWithBackoff(t *testing.T) {
	row := testRow("message.deleted", 1)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	pub := &fakePublisher{publishErr: []error{errors.New("transient")}}
	service := newTestService(t, storage, pub, nil)

	before := time.Now()
	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(storage.failed) != 1 {
		t.Fatalf("expected one failed mark, got %d", len(storage.failed))
	}
	// attempt_count 1 doubles the base delay once.
	wantDelay := 2 * time.Second
	gotDelay := storage.failedAt[0].Sub(before)
	if gotDelay < wantDelay || gotDelay > wantDelay+time.Second {
		t.Fatalf("unexpected retry delay: %v", gotDelay)
	}
}

func TestServiceBackoffIsCapped(t *testing.T) {
	service := newTestService(t, &fakeStorage{}, &fakePublisher{}, func(cfg *config.Config) {
		cfg.Outbox.RetryBackoff = time.Second
		cfg.Outbox.MaxBackoff = 5 * time.Second
	})
	if got := service.backoffFor(0); got != time.Second {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := service.backoffFor(2); got != 4*time.Second {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := service.backoffFor(10); got != 5*time.Second {
		t.Fatalf("attempt 10: got %v", got)
	}
}

func TestServiceProcessBatchPropagatesScanError(t *testing.T) {
	storage := &fakeStorage{scanErr: errors.New("db down")}
	service := newTestService(t, storage, &fakePublisher{}, nil)

	processed, err := service.processBatch(context.Background())
	if err == nil {
		t.Fatalf("expected scan error")
	}
	if processed {
		t.Fatalf("scan failure must not report processed")
	}
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeStorage{}, &fakePublisher{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("empty batch must not report processed")
	}
}

func TestServiceRunStopsOnContextCancel(t *testing.T) {
	storage := &fakeStorage{}
	pub := &fakePublisher{}
	service := newTestService(t, storage, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("relay did not stop after cancel")
	}
}

func TestServiceReconnectsBeforePublish(t *testing.T) {
	row := testRow("message.created", 0)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	// The broker dropped the connection after startup; EnsureConnected
	// restores it.
	pub := &fakePublisher{down: true}
	service := newTestService(t, storage, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if pub.ensureCalls == 0 {
		t.Fatalf("expected a reconnect attempt before the publish")
	}
	if len(storage.sent) != 1 || storage.sent[0] != row.ID {
		t.Fatalf("expected row delivered after reconnect, got sent=%v failed=%v", storage.sent, storage.failed)
	}
	if len(pub.declared) != 1 || pub.declared[0] != row.ExchangeName {
		t.Fatalf("expected per-record exchange declare, got %v", pub.declared)
	}
}

func TestServiceConnectFailureMarksRowFailed(t *testing.T) {
	row := testRow("message.created", 0)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	pub := &fakePublisher{connectErr: errors.New("dial refused")}
	service := newTestService(t, storage, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(storage.failed) != 1 || storage.failed[0] != row.ID {
		t.Fatalf("expected row rescheduled, got failed=%v dead=%v", storage.failed, storage.dead)
	}
	if pub.calls != 0 {
		t.Fatalf("publish must not be attempted without a connection")
	}
}

func TestServiceDeclareFailureDoesNotBlockPublish(t *testing.T) {
	row := testRow("server.deleted", 0)
	storage := &fakeStorage{rows: []models.OutboxMessage{row}}
	pub := &fakePublisher{declareErr: errors.New("precondition failed")}
	service := newTestService(t, storage, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(storage.sent) != 1 || storage.sent[0] != row.ID {
		t.Fatalf("expected row delivered despite declare failure, got sent=%v failed=%v", storage.sent, storage.failed)
	}
}

func TestServiceRunSurvivesBrokerOutageAtStartup(t *testing.T) {
	pub := &fakePublisher{connectErr: errors.New("dial refused")}
	service := newTestService(t, &fakeStorage{}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("relay exited instead of polling through the outage")
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard})
	cfg := &config.Config{}

	cases := []struct {
		name   string
		params ServiceParams
	}{
		{"missing config", ServiceParams{Logger: logg, Storage: &fakeStorage{}, Publisher: &fakePublisher{}}},
		{"missing logger", ServiceParams{Config: cfg, Storage: &fakeStorage{}, Publisher: &fakePublisher{}}},
		{"missing storage", ServiceParams{Config: cfg, Logger: logg, Publisher: &fakePublisher{}}},
		{"missing publisher", ServiceParams{Config: cfg, Logger: logg, Storage: &fakeStorage{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewService(tc.params); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
