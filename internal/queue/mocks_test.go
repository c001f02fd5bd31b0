package queue_test

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type sentMessage struct {
	routingKey string
	msg        amqp.Publishing
}

type mockSender struct {
	sendFn func(ctx context.Context, routingKey string, msg amqp.Publishing) error
	sent   []sentMessage
}

func (m *mockSender) Send(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, routingKey, msg); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, sentMessage{routingKey: routingKey, msg: msg})
	return nil
}

type declaredQueue struct {
	name    string
	durable bool
	args    amqp.Table
}

type declaredBinding struct {
	queue, key, exchange string
}

type mockDeclarer struct {
	exchanges map[string]string
	queues    []declaredQueue
	bindings  []declaredBinding
}

func newMockDeclarer() *mockDeclarer {
	return &mockDeclarer{exchanges: map[string]string{}}
}

func (m *mockDeclarer) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	m.exchanges[name] = kind
	return nil
}

func (m *mockDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.queues = append(m.queues, declaredQueue{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, nil
}

func (m *mockDeclarer) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	m.bindings = append(m.bindings, declaredBinding{queue: name, key: key, exchange: exchange})
	return nil
}

type mockAcknowledger struct {
	acked    []uint64
	nacked   []uint64
	requeued bool
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	m.acked = append(m.acked, tag)
	return nil
}

func (m *mockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	m.nacked = append(m.nacked, tag)
	m.requeued = m.requeued || requeue
	return nil
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

type mockChannelSource struct {
	err   error
	calls int
}

func (m *mockChannelSource) ConsumeChannel() (*amqp.Channel, error) {
	m.calls++
	return nil, m.err
}
