package worker_test

import (
	"context"
	"sync"

	"worktrack.app/relay/internal/queue"
)

type readResult struct {
	msg queue.Message
	err error
}

// chanConsumer serves reads from a channel and records how each message was settled.
type chanConsumer struct {
	reads chan readResult

	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
	ackErr error
}

func newChanConsumer() *chanConsumer {
	return &chanConsumer{reads: make(chan readResult, 16)}
}

func (c *chanConsumer) push(msg queue.Message) {
	c.reads <- readResult{msg: msg}
}

func (c *chanConsumer) fail(err error) {
	c.reads <- readResult{err: err}
}

func (c *chanConsumer) Read(ctx context.Context) (queue.Message, error) {
	select {
	case <-ctx.Done():
		return queue.Message{}, ctx.Err()
	case r := <-c.reads:
		return r.msg, r.err
	}
}

func (c *chanConsumer) Ack(ctx context.Context, msg queue.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, msg.DeliveryTag)
	return c.ackErr
}

func (c *chanConsumer) Nack(ctx context.Context, msg queue.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nacked = append(c.nacked, msg.DeliveryTag)
	return nil
}

func (c *chanConsumer) Queue() string {
	return "test.queue"
}

func (c *chanConsumer) Acked() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.acked...)
}

func (c *chanConsumer) Nacked() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.nacked...)
}
