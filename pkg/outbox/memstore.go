package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
)

// MemStore is an in-memory Storage adapter. It backs relay tests and
// single-process deployments that run without a database.
type MemStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.OutboxMessage
}

func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[uuid.UUID]*models.OutboxMessage)}
}

// WithTx is a no-op; the in-memory adapter has no transactions.
func (s *MemStore) WithTx(_ *gorm.DB) Storage {
	return s
}

func (s *MemStore) InsertIfAbsent(_ context.Context, row *models.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.ID]; ok {
		return nil
	}
	cp := *row
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Status == "" {
		cp.Status = enums.OutboxStatusReady
	}
	s.rows[row.ID] = &cp
	return nil
}

func (s *MemStore) ScanReady(_ context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eligible := make([]models.OutboxMessage, 0, limit)
	for _, row := range s.rows {
		switch row.Status {
		case enums.OutboxStatusReady:
			eligible = append(eligible, *row)
		case enums.OutboxStatusFailed:
			if row.NextAttemptAt != nil && !row.NextAttemptAt.After(now) {
				eligible = append(eligible, *row)
			}
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID.String() < eligible[j].ID.String()
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func (s *MemStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.Status = enums.OutboxStatusSent
	}
	return nil
}

func (s *MemStore) MarkFailed(_ context.Context, id uuid.UUID, cause error, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.Status = enums.OutboxStatusFailed
	row.AttemptCount++
	msg := truncateError(cause)
	row.LastError = &msg
	at := nextAttemptAt
	row.NextAttemptAt = &at
	failedAt := time.Now()
	row.FailedAt = &failedAt
	return nil
}

func (s *MemStore) MarkDead(_ context.Context, id uuid.UUID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.Status = enums.OutboxStatusDead
	row.AttemptCount++
	msg := truncateError(cause)
	row.LastError = &msg
	row.NextAttemptAt = nil
	failedAt := time.Now()
	row.FailedAt = &failedAt
	return nil
}

// Get returns a copy of the row, if present.
func (s *MemStore) Get(id uuid.UUID) (models.OutboxMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return models.OutboxMessage{}, false
	}
	return *row, true
}
