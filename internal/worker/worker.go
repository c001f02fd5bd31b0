package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/queue"
)

type Config struct {
	// Bounds for the pause between failed reads while the broker is unavailable.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Worker drains one queue, handing each message to its Handler and settling it.
// Messages are processed one at a time.
type Worker struct {
	consumer Consumer
	handler  Handler
	retry    backoff.BackOff

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, handler Handler, cfg Config) *Worker {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.RetryDelay
	retry.MaxInterval = cfg.MaxRetryDelay
	retry.MaxElapsedTime = 0

	return &Worker{
		consumer:  consumer,
		handler:   handler,
		retry:     retry,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done. A message being handled when Stop
// is called is finished and settled first.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker",
		Queue:     logger.Ptr(w.consumer.Queue()),
	})

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-readCtx.Done():
		}
	}()

	slog.InfoContext(ctx, "worker started")

	for {
		msg, err := w.consumer.Read(readCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if readCtx.Err() != nil {
				slog.InfoContext(ctx, "worker stopping")
				return nil
			}
			if !w.pause(readCtx, err) {
				slog.InfoContext(ctx, "worker stopping")
				return nil
			}
			continue
		}
		w.retry.Reset()

		w.process(ctx, msg)
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

// pause waits out a failed read. It returns false if the worker was stopped meanwhile.
func (w *Worker) pause(ctx context.Context, err error) bool {
	delay := w.retry.NextBackOff()
	if errors.Is(err, queue.ErrUnavailable) {
		slog.WarnContext(ctx, "broker unavailable, waiting", "retry_in", delay)
	} else {
		slog.ErrorContext(ctx, "reading from queue failed", "error", err, "retry_in", delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) process(ctx context.Context, msg queue.Message) {
	ctx = queue.ExtractTrace(ctx, msg.Headers)
	fields := logger.LogFields{
		DeliveryTag: logger.Ptr(msg.DeliveryTag),
		RoutingKey:  logger.Ptr(msg.RoutingKey),
	}
	if msg.ID != "" {
		fields.EventID = logger.Ptr(msg.ID)
	}
	ctx = logger.WithLogFields(ctx, fields)

	err := w.processMessageSafe(ctx, msg)

	outcome := metrics.OutcomeAcked
	switch {
	case err == nil:
		w.ack(ctx, msg)
	case errors.Is(err, queue.ErrSkip):
		outcome = metrics.OutcomeSkipped
		slog.DebugContext(ctx, "message skipped")
		w.ack(ctx, msg)
	default:
		outcome = metrics.OutcomeNacked
		var decodeErr *queue.DecodeError
		if errors.As(err, &decodeErr) {
			slog.ErrorContext(ctx, "discarding undecodable message", "error", err)
		} else {
			slog.ErrorContext(ctx, "message processing failed", "error", err, "redelivered", msg.Redelivered)
		}
		if nackErr := w.consumer.Nack(ctx, msg); nackErr != nil {
			slog.WarnContext(ctx, "failed to reject message", "error", nackErr)
		}
	}

	metrics.IncMessageProcessed(w.consumer.Queue(), outcome)
}

func (w *Worker) ack(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The broker redelivers unacked messages; handlers are idempotent.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, msg)
}
