package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"social-service/internal/observability"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// publisher owns one connection and channel to a topic exchange. A channel
// closed by the broker is redialed on the next Publish.
type publisher struct {
	url      string
	exchange string
	log      *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewPublisher dials RabbitMQ and declares exchange as a durable topic exchange.
func NewPublisher(amqpURL, exchange string, log *zap.Logger) (Publisher, error) {
	p := &publisher{url: amqpURL, exchange: exchange, log: log}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn, p.channel = conn, ch
	return nil
}

func (p *publisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		observability.IncAMQPPublishError()
		return amqp.ErrClosed
	}
	if p.channel == nil || p.channel.IsClosed() {
		p.release()
		if err := p.connect(); err != nil {
			observability.IncAMQPPublishError()
			return err
		}
		p.log.Info("reconnected to RabbitMQ", zap.String("exchange", p.exchange))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		observability.IncAMQPPublishError()
		return err
	}
	observability.IncEventPublished(routingKey)
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.release()
	return nil
}

func (p *publisher) release() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

type noopPublisher struct {
	log *zap.Logger
}

// NewNoopPublisher returns a publisher that drops events with a debug log.
func NewNoopPublisher(log *zap.Logger) Publisher { return &noopPublisher{log: log} }

func (n *noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	n.log.Debug("RabbitMQ not configured; skipping publish", zap.String("routing_key", routingKey))
	return nil
}

func (n *noopPublisher) Close() error { return nil }
