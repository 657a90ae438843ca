// Package notify bridges plugin lifecycle events to external consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	xerrors "plugind/internal/errors"
	"plugind/pkg/plugin"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig carries the connection parameters for the event publisher.
type AMQPConfig struct {
	URL        string
	Queue      string
	Durable    bool
	AutoDelete bool
}

// AMQPPublisher forwards lifecycle events to a RabbitMQ queue so other
// services can observe plugin churn. It satisfies plugin.Handler and is
// subscribed to the manager's dispatcher by the host.
type AMQPPublisher struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
}

// NewAMQPPublisher connects to RabbitMQ and declares the queue.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL cannot be empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "plugind.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEventFailure, err, "connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeEventFailure, err, "open RabbitMQ channel")
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeEventFailure, err, "declare event queue")
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, timeout: 5 * time.Second}, nil
}

// Handle implements plugin.Handler by publishing the event as JSON.
func (p *AMQPPublisher) Handle(event plugin.Event) error {
	if p == nil || p.ch == nil {
		return errors.New("AMQP publisher not initialised")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEventFailure, err, "encode lifecycle event")
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   time.Unix(event.OccurredAt, 0),
		Body:        body,
	}); err != nil {
		return xerrors.Wrap(xerrors.CodeEventFailure, err, "publish lifecycle event")
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ plugin.Handler = (*AMQPPublisher)(nil)
