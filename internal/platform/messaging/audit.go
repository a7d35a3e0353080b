// Package messaging publishes audit events to RabbitMQ.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"

	"github.com/ehr/records/internal/platform/middleware"
)

// Publisher is satisfied by *amqp091.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Broker owns the connection and channel used for publishing.
type Broker struct {
	conn    *amqp091.Connection
	Channel *amqp091.Channel
}

// Dial connects and declares exchange as a durable topic exchange.
func Dial(url, exchange string) (*Broker, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Broker{conn: conn, Channel: ch}, nil
}

func (b *Broker) Close() error {
	if b.Channel != nil {
		b.Channel.Close()
	}
	return b.conn.Close()
}

// AuditPublisher implements middleware.AuditRecorder on top of a topic
// exchange. Routing keys look like audit.patients.read.
type AuditPublisher struct {
	pub      Publisher
	exchange string
	timeout  time.Duration
}

func NewAuditPublisher(pub Publisher, exchange string) *AuditPublisher {
	return &AuditPublisher{pub: pub, exchange: exchange, timeout: 2 * time.Second}
}

func RoutingKey(e middleware.AuditEntry) string {
	return "audit." + e.ResourceType + "." + e.Action
}

func (p *AuditPublisher) RecordAccess(ctx context.Context, entry middleware.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     entry.Timestamp,
		CorrelationId: entry.RequestID,
		Type:          "phi_access",
		Body:          body,
		Headers: amqp091.Table{
			"user_id": entry.UserID,
			"role":    entry.Role,
		},
	}
	if err := p.pub.PublishWithContext(ctx, p.exchange, RoutingKey(entry), false, false, msg); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}
