package queue

import (
	"fmt"
	"slices"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"worktrack.app/relay/core/config"
	"worktrack.app/relay/internal/domain"
)

const (
	RoutingEntityMutation     = string(domain.CategoryEntityMutation)
	RoutingAutomationMutation = string(domain.CategoryAutomationDefinitionMutation)
)

type Binding struct {
	Queue      string
	RoutingKey string
}

// Topology describes the exchange, queues and bindings the pipeline relies on.
// The index queue sees entity mutations only; the automation queue also receives
// rule definition changes.
type Topology struct {
	Exchange        string
	IndexQueue      string
	AutomationQueue string

	// Empty disables dead-lettering.
	DeadLetterExchange string
	DeadLetterQueue    string
}

func NewTopology(cfg config.AMQPConfig) Topology {
	t := Topology{
		Exchange:        cfg.Exchange,
		IndexQueue:      cfg.IndexQueue,
		AutomationQueue: cfg.AutomationQueue,
	}
	if cfg.DeadLetter {
		t.DeadLetterExchange = cfg.Exchange + ".dlx"
		t.DeadLetterQueue = cfg.Exchange + ".dead"
	}
	return t
}

func (t Topology) Bindings() []Binding {
	return []Binding{
		{Queue: t.IndexQueue, RoutingKey: RoutingEntityMutation},
		{Queue: t.AutomationQueue, RoutingKey: RoutingEntityMutation},
		{Queue: t.AutomationQueue, RoutingKey: RoutingAutomationMutation},
	}
}

// QueuesFor returns the queues a message published with routingKey is delivered to.
func (t Topology) QueuesFor(routingKey string) []string {
	var queues []string
	for _, b := range t.Bindings() {
		if topicMatch(b.RoutingKey, routingKey) && !slices.Contains(queues, b.Queue) {
			queues = append(queues, b.Queue)
		}
	}
	return queues
}

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare is idempotent; RabbitMQ accepts redeclaration with identical arguments.
func (t Topology) Declare(ch Declarer) error {
	var queueArgs amqp.Table
	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring dead letter exchange %s: %w", t.DeadLetterExchange, err)
		}
		if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring dead letter queue %s: %w", t.DeadLetterQueue, err)
		}
		if err := ch.QueueBind(t.DeadLetterQueue, "", t.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("binding dead letter queue: %w", err)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
	}

	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", t.Exchange, err)
	}

	for _, q := range []string{t.IndexQueue, t.AutomationQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, queueArgs); err != nil {
			return fmt.Errorf("declaring queue %s: %w", q, err)
		}
	}

	for _, b := range t.Bindings() {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("binding %s to %s: %w", b.Queue, b.RoutingKey, err)
		}
	}
	return nil
}

// topicMatch implements AMQP topic matching: words are dot separated, "*" matches
// exactly one word and "#" matches zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}
