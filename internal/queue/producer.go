package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/domain"
)

// Sender publishes a raw message to the pipeline exchange. Implemented by Broker.
type Sender interface {
	Send(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

type Producer struct {
	sender Sender
}

func NewProducer(sender Sender) *Producer {
	return &Producer{sender: sender}
}

// Publish sends a domain event under its category routing key. No buffering: when the
// broker is down the event is dropped and ErrUnavailable returned.
func (p *Producer) Publish(ctx context.Context, event domain.DomainEvent) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:  "relay.queue.producer",
		EventID:    logger.Ptr(event.EventID),
		RoutingKey: logger.Ptr(event.RoutingKey()),
	})
	return p.publish(ctx, event.RoutingKey(), event.EventID, event)
}

// PublishIndexSync sends a flat index-sync message on the entity-mutation key. Only
// the index consumer acts on it; the automation consumer skips category-less bodies.
func (p *Producer) PublishIndexSync(ctx context.Context, msg domain.IndexSyncMessage) error {
	if err := domain.ValidateIndexSync(msg); err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:  "relay.queue.producer",
		RoutingKey: logger.Ptr(RoutingEntityMutation),
	})
	return p.publish(ctx, RoutingEntityMutation, "", msg)
}

func (p *Producer) publish(ctx context.Context, routingKey, messageID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	headers := amqp.Table{}
	injectTrace(ctx, headers)

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := p.sender.Send(ctx, routingKey, msg); err != nil {
		if errors.Is(err, ErrUnavailable) {
			slog.WarnContext(ctx, "broker unavailable, message dropped")
		} else {
			slog.ErrorContext(ctx, "failed to publish message", "error", err)
		}
		return err
	}

	slog.DebugContext(ctx, "message published", "bytes", len(body))
	return nil
}
