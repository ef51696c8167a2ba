package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/config"
)

// Publisher sends UserEvents to a durable queue.  A connection is dialed per
// publish, so the caller should run Publish off the request path.  Errors
// are returned, never logged here.
type Publisher struct {
	url     string
	queue   string
	enabled bool
	log     *zap.Logger
}

// NewPublisher builds a Publisher from qc.  When events are disabled Publish
// does nothing.
func NewPublisher(qc config.QueueConfig, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: qc.URL, queue: qc.Queue, enabled: qc.Enabled, log: log}
}

// Publish marshals ev and publishes it as a persistent message on the
// default exchange, routed to the configured queue.
func (p *Publisher) Publish(ctx context.Context, ev UserEvent) error {
	if p == nil || !p.enabled {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, p.queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.Debug("user event published", zap.String("event", ev.Type), zap.String("user_id", ev.UserID))
	return nil
}

// declare makes sure the durable queue exists.  Publisher and consumer use
// the same arguments so either side may create it.
func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(name, true, false, false, false, nil)
}
