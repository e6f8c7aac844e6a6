package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/pkg/config"
	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/logger"
	"github.com/communityhq/communities-backend/pkg/metrics"
	"github.com/communityhq/communities-backend/pkg/outbox"
)

const (
	defaultBatchSize    = 100
	defaultPollMs       = 1000
	defaultMaxAttempts  = 10
	defaultRetryBackoff = 5 * time.Second
	defaultMaxBackoff   = 10 * time.Minute
	loopMaxBackoff      = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type outboxStorage interface {
	ScanReady(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error
}

type brokerPublisher interface {
	EnsureConnected(ctx context.Context) error
	DeclareExchange(name string) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Storage   outboxStorage
	Publisher brokerPublisher
	Metrics   *metrics.RelayMetrics
}

// Service drains READY outbox rows to the broker on a fixed poll interval.
// A failed publish never blocks the rest of the batch; the row is
// rescheduled with exponential backoff until its attempt budget runs out.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	storage      outboxStorage
	publisher    brokerPublisher
	metrics      *metrics.RelayMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	retryBackoff time.Duration
	maxBackoff   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Storage == nil {
		return nil, errors.New("outbox storage is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("broker publisher is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryBackoff := params.Config.Outbox.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	maxBackoff := params.Config.Outbox.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		storage:      params.Storage,
		publisher:    params.Publisher,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		retryBackoff: retryBackoff,
		maxBackoff:   maxBackoff,
	}, nil
}

// warmUp connects and declares the default exchange ahead of the first
// poll. Best effort: a broker that is down at startup is retried per
// record inside the loop, never a reason to exit.
func (s *Service) warmUp(ctx context.Context) {
	if err := s.publisher.EnsureConnected(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "broker not reachable at startup")
		return
	}
	if err := s.publisher.DeclareExchange(outbox.NotificationsExchange); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "exchange declare failed at startup")
	}
}

// Run polls until ctx is canceled. Batch-level errors back off
// exponentially; an empty batch sleeps one poll interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.warmUp(ctx)

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox relay context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logg.Error(ctx, "outbox relay batch error", err)
			backoff = nextBackoff(backoff, interval, loopMaxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	rows, err := s.storage.ScanReady(ctx, start, s.batchSize)
	if err != nil {
		return false, fmt.Errorf("scan ready: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		default:
		}
		if err := s.relayRecord(ctx, row); err != nil {
			return true, err
		}
	}
	s.metrics.ObserveBatch("outbox-relay", time.Since(start))
	return true, nil
}

// relayRecord publishes one row and records the outcome. Publish errors
// are absorbed into the row's status; only storage errors propagate.
// The connection is re-checked per record so a dropped broker heals on
// the next attempt instead of bleeding the row's retry budget dry.
func (s *Service) relayRecord(ctx context.Context, row models.OutboxMessage) error {
	fields := s.rowFields(row)

	err := s.publisher.EnsureConnected(ctx)
	if err == nil {
		if declareErr := s.publisher.DeclareExchange(row.ExchangeName); declareErr != nil {
			// The exchange usually exists already; publish anyway.
			logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", declareErr.Error())
			s.logg.Warn(logCtx, "exchange declare failed")
		}
		err = s.publisher.Publish(ctx, row.ExchangeName, row.RoutingKey, row.Payload)
	}

	if err != nil {
		s.metrics.IncFailed(row.RoutingKey)
		attempt := row.AttemptCount + 1
		fields["attempt_count"] = attempt

		if attempt >= s.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
			s.logg.Warn(logCtx, "outbox record retired")
			s.metrics.IncDead(row.RoutingKey)
			terminalErr := fmt.Errorf("max publish attempts reached: %w", err)
			if markErr := s.storage.MarkDead(ctx, row.ID, terminalErr); markErr != nil {
				return fmt.Errorf("mark dead %s: %w", row.ID, markErr)
			}
			return nil
		}

		nextAttemptAt := time.Now().Add(s.backoffFor(row.AttemptCount))
		fields["next_attempt_at"] = nextAttemptAt.Format(time.RFC3339Nano)
		logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
		s.logg.Warn(logCtx, "outbox publish failed")
		if markErr := s.storage.MarkFailed(ctx, row.ID, err, nextAttemptAt); markErr != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, markErr)
		}
		return nil
	}

	if markErr := s.storage.MarkSent(ctx, row.ID); markErr != nil {
		return fmt.Errorf("mark sent %s: %w", row.ID, markErr)
	}
	s.metrics.IncPublished(row.RoutingKey)
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox record published")
	return nil
}

// backoffFor doubles the retry delay per completed attempt, capped at
// maxBackoff.
func (s *Service) backoffFor(attemptCount int) time.Duration {
	delay := s.retryBackoff
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	if delay > s.maxBackoff {
		return s.maxBackoff
	}
	return delay
}

func (s *Service) rowFields(row models.OutboxMessage) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"exchange":      row.ExchangeName,
		"routing_key":   row.RoutingKey,
		"attempt_count": row.AttemptCount,
		"batch_size":    s.batchSize,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
