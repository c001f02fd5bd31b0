package worker

import (
	"context"

	"worktrack.app/relay/internal/queue"
)

// Consumer abstracts the message queue for testability. Implemented by queue.Consumer.
type Consumer interface {
	Read(ctx context.Context) (queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Nack(ctx context.Context, msg queue.Message) error
	Queue() string
}

// Handler processes one message. A nil error acks it, queue.ErrSkip acks it as skipped,
// and any other error rejects it without requeue.
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg queue.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg queue.Message) error {
	return f(ctx, msg)
}
