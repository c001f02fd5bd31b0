package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/core/config"
	"worktrack.app/relay/internal/metrics"
)

// ErrUnavailable is returned while the broker connection is down.
var ErrUnavailable = errors.New("broker unavailable")

// Broker owns the process's AMQP connection and publishing channel. When the
// connection drops the cached handles are cleared, so callers see ErrUnavailable
// instead of a stale channel, and a background loop redials with backoff.
type Broker struct {
	url          string
	topology     Topology
	reconnectMax time.Duration

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	pubMu   sync.Mutex

	closing chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewBroker(cfg config.AMQPConfig, topology Topology) *Broker {
	return &Broker{
		url:          cfg.URL,
		topology:     topology,
		reconnectMax: cfg.ReconnectMax,
		closing:      make(chan struct{}),
	}
}

func (b *Broker) Topology() Topology {
	return b.topology
}

// Connect dials the broker and declares the topology. It fails fast; reconnection
// only kicks in after a connection has been established once.
func (b *Broker) Connect(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.queue.broker"})
	if err := b.dial(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "broker connected",
		"exchange", b.topology.Exchange,
		"index_queue", b.topology.IndexQueue,
		"automation_queue", b.topology.AutomationQueue,
		"dead_letter", b.topology.DeadLetterExchange != "")
	return nil
}

func (b *Broker) dial() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := b.topology.Declare(ch); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declaring topology: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.channel = ch
	b.mu.Unlock()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	b.wg.Add(1)
	go b.watch(closed)
	return nil
}

func (b *Broker) watch(closed <-chan *amqp.Error) {
	defer b.wg.Done()
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{Component: "relay.queue.broker"})

	select {
	case <-b.closing:
		return
	case amqpErr := <-closed:
		if b.isClosing() {
			return
		}
		b.mu.Lock()
		b.conn = nil
		b.channel = nil
		b.mu.Unlock()
		slog.WarnContext(ctx, "broker connection lost", "error", amqpErr)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = b.reconnectMax
	policy.MaxElapsedTime = 0

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.closing:
			cancel()
		case <-bctx.Done():
		}
	}()

	redial := func() error {
		if b.isClosing() {
			return backoff.Permanent(ErrUnavailable)
		}
		return b.dial()
	}
	err := backoff.RetryNotify(redial, backoff.WithContext(policy, bctx), func(err error, next time.Duration) {
		slog.WarnContext(ctx, "broker reconnect failed", "error", err, "retry_in", next)
	})
	if err != nil {
		return
	}
	metrics.IncBrokerReconnect()
	slog.InfoContext(ctx, "broker reconnected")
}

func (b *Broker) isClosing() bool {
	select {
	case <-b.closing:
		return true
	default:
		return false
	}
}

// Channel returns the shared publishing channel.
func (b *Broker) Channel() (*amqp.Channel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.channel == nil || b.channel.IsClosed() {
		return nil, ErrUnavailable
	}
	return b.channel, nil
}

// ConsumeChannel opens a dedicated channel with prefetch 1 so each consumer handles
// one unacknowledged message at a time.
func (b *Broker) ConsumeChannel() (*amqp.Channel, error) {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return nil, ErrUnavailable
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening consume channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}
	return ch, nil
}

// Send publishes on the shared channel. Publishes are serialized.
func (b *Broker) Send(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	ch, err := b.Channel()
	if err != nil {
		return err
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if err := ch.PublishWithContext(ctx, b.topology.Exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", routingKey, err)
	}
	return nil
}

func (b *Broker) Close() error {
	var err error
	b.once.Do(func() {
		close(b.closing)
		b.mu.Lock()
		conn := b.conn
		b.conn = nil
		b.channel = nil
		b.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		b.wg.Wait()
	})
	return err
}
