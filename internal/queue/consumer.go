package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"worktrack.app/relay/common/logger"
)

// ChannelSource hands out consumer channels. Implemented by Broker.
type ChannelSource interface {
	ConsumeChannel() (*amqp.Channel, error)
}

// Consumer reads one queue with manual acknowledgement. It resubscribes lazily after
// the delivery stream closes, so a broker reconnect surfaces as a transient
// ErrUnavailable from Read.
type Consumer struct {
	source ChannelSource
	queue  string
	tag    string

	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewConsumer(source ChannelSource, queue, tag string) *Consumer {
	return &Consumer{source: source, queue: queue, tag: tag}
}

func (c *Consumer) Queue() string {
	return c.queue
}

// Read blocks until the next delivery arrives or ctx is done.
func (c *Consumer) Read(ctx context.Context) (Message, error) {
	if c.deliveries == nil {
		if err := c.subscribe(ctx); err != nil {
			return Message{}, err
		}
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			c.deliveries = nil
			c.ch = nil
			return Message{}, ErrUnavailable
		}
		return FromDelivery(c.queue, d), nil
	}
}

func (c *Consumer) subscribe(ctx context.Context) error {
	ch, err := c.source.ConsumeChannel()
	if err != nil {
		return err
	}
	deliveries, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consuming %s: %w", c.queue, err)
	}
	c.ch = ch
	c.deliveries = deliveries

	slog.InfoContext(ctx, "subscribed to queue", "queue", c.queue, "consumer_tag", c.tag)
	return nil
}

func (c *Consumer) Ack(ctx context.Context, msg Message) error {
	if err := msg.Raw.Ack(false); err != nil {
		return fmt.Errorf("ack (queue=%s): %w", c.queue, err)
	}
	slog.DebugContext(ctx, "message acknowledged")
	return nil
}

// Nack rejects without requeue; with dead-lettering enabled the message moves to the DLQ.
func (c *Consumer) Nack(ctx context.Context, msg Message) error {
	if err := msg.Raw.Nack(false, false); err != nil {
		return fmt.Errorf("nack (queue=%s): %w", c.queue, err)
	}
	slog.WarnContext(ctx, "message rejected", "redelivered", msg.Redelivered)
	return nil
}

func (c *Consumer) Close() error {
	if c.ch == nil {
		return nil
	}
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{Queue: logger.Ptr(c.queue)})
	if err := c.ch.Close(); err != nil {
		slog.WarnContext(ctx, "closing consumer channel", "error", err)
		return err
	}
	return nil
}
