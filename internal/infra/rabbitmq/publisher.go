package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JarudeC/privacylens/internal/domain/entity"
)

// EventPublisher emits job lifecycle events to a topic exchange. The
// client contract stays synchronous; this stream exists for downstream
// operational consumers only.
type EventPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewEventPublisher(conn *amqp.Connection, exchange string) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &EventPublisher{channel: ch, exchange: exchange, routingKey: "video.events"}, nil
}

func (p *EventPublisher) PublishJobEvent(ctx context.Context, ev entity.JobEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishJobEvent(context.Context, entity.JobEvent) error { return nil }
