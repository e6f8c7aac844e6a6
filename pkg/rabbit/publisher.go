package rabbit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/communityhq/communities-backend/pkg/config"
	"github.com/communityhq/communities-backend/pkg/logger"
)

var (
	errURLRequired  = errors.New("rabbitmq url is required")
	errNotConnected = errors.New("rabbitmq publisher is not connected")
	errNacked       = errors.New("broker rejected the publish")
)

// Publisher owns a single AMQP connection and channel in confirm mode.
// All methods are safe for concurrent use; the mutex serializes access to
// the underlying channel, which amqp091 does not make concurrency-safe.
type Publisher struct {
	cfg  config.RabbitConfig
	logg *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg config.RabbitConfig, logg *logger.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errURLRequired
	}
	return &Publisher{cfg: cfg, logg: logg}, nil
}

// Connect dials the broker and puts the channel into confirm mode. Calling
// it on a live connection is a no-op.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Publisher) connectLocked(ctx context.Context) error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.closeLocked()

	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{
		Dial: amqp.DefaultDial(p.cfg.DialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("enabling publisher confirms: %w", err)
	}

	p.conn = conn
	p.ch = ch
	if p.logg != nil {
		p.logg.Info(ctx, "rabbitmq publisher connected")
	}
	return nil
}

// DeclareExchange creates the durable topic exchange if it does not exist.
func (p *Publisher) DeclareExchange(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return errNotConnected
	}
	if err := p.ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %q: %w", name, err)
	}
	return nil
}

// Publish sends a persistent message and blocks until the broker confirms
// it, the publish timeout elapses, or ctx is canceled. An unconfirmed
// publish is an error; callers must not treat it as delivered.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s/%s: %w", exchange, routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("awaiting confirm for %s/%s: %w", exchange, routingKey, err)
	}
	if !acked {
		return errNacked
	}
	return nil
}

// IsConnected reports whether both the connection and channel are live.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

// EnsureConnected reconnects if the broker dropped the connection.
func (p *Publisher) EnsureConnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

// Close tears down the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
