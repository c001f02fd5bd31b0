package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/queue"
)

const publishTimeout = 10 * time.Second

// Publisher delivers a domain event to the broker. Implemented by queue.Producer.
type Publisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
}

// EventEmitter is what mutating services call after their transaction commits.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.DomainEvent)
}

// EventDispatcher validates events and publishes them in the background, so a slow or
// unavailable broker never delays or fails the request that caused the mutation.
// Events that cannot be delivered are logged and counted, never retried.
type EventDispatcher struct {
	publisher Publisher
	wg        sync.WaitGroup
}

func NewEventDispatcher(publisher Publisher) *EventDispatcher {
	return &EventDispatcher{publisher: publisher}
}

func (d *EventDispatcher) Emit(ctx context.Context, event domain.DomainEvent) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.service.dispatcher",
		EventID:   logger.Ptr(event.EventID),
	})

	if err := domain.Validate(event); err != nil {
		metrics.IncEventDropped(metrics.DropInvalid)
		slog.ErrorContext(ctx, "dropping invalid domain event", "error", err, "event", event.Redacted())
		return
	}

	slog.InfoContext(ctx, "emitting domain event",
		"event_type", event.EventTypeKey(),
		"routing_key", event.RoutingKey(),
		"entity_id", event.EntityID)
	slog.DebugContext(ctx, "domain event payload", "event", event.Redacted())

	// The request context ends with the response; publishing must outlive it.
	pubCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.publish(pubCtx, event)
	}()
}

func (d *EventDispatcher) publish(ctx context.Context, event domain.DomainEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := d.publisher.Publish(ctx, event)
	if err == nil {
		metrics.IncEventEmitted(string(event.Category))
		return
	}

	reason := metrics.DropPublishFailed
	if errors.Is(err, queue.ErrUnavailable) {
		reason = metrics.DropUnavailable
	}
	metrics.IncEventDropped(reason)
	slog.ErrorContext(ctx, "failed to publish domain event",
		"error", err,
		"reason", reason,
		"event_type", event.EventTypeKey())
}

// Close waits for in-flight publishes until ctx is done.
func (d *EventDispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "event dispatcher closed with publishes in flight")
		return ctx.Err()
	}
}
