package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"worktrack.app/relay/internal/domain"
)

// Message is a delivery read from one of the pipeline queues.
type Message struct {
	ID          string
	Queue       string
	RoutingKey  string
	Body        []byte
	Headers     amqp.Table
	DeliveryTag uint64
	Redelivered bool
	Raw         amqp.Delivery
}

func FromDelivery(queue string, d amqp.Delivery) Message {
	return Message{
		ID:          d.MessageId,
		Queue:       queue,
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Headers:     d.Headers,
		DeliveryTag: d.DeliveryTag,
		Redelivered: d.Redelivered,
		Raw:         d,
	}
}

// DecodeError marks a message body that can never be processed; consumers reject it
// without requeue.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var ErrEmptyBody = errors.New("empty message body")

type envelope struct {
	Category domain.EventCategory `json:"category"`
}

// PeekCategory returns the event category, or "" for legacy flat messages.
func PeekCategory(body []byte) (domain.EventCategory, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", &DecodeError{Err: ErrEmptyBody}
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &DecodeError{Err: err}
	}
	return env.Category, nil
}

// DecodeEvent parses and validates a domain event.
func DecodeEvent(body []byte) (domain.DomainEvent, error) {
	var event domain.DomainEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.DomainEvent{}, &DecodeError{Err: err}
	}
	if err := domain.Validate(event); err != nil {
		return domain.DomainEvent{}, &DecodeError{Err: err}
	}
	return event, nil
}

// DecodeIndexSync accepts both a domain event and the legacy flat index message.
func DecodeIndexSync(body []byte) (domain.IndexSyncMessage, error) {
	category, err := PeekCategory(body)
	if err != nil {
		return domain.IndexSyncMessage{}, err
	}

	if category != "" {
		event, err := DecodeEvent(body)
		if err != nil {
			return domain.IndexSyncMessage{}, err
		}
		msg, err := domain.IndexSyncFromEvent(event)
		if err != nil {
			return domain.IndexSyncMessage{}, &DecodeError{Err: err}
		}
		return msg, nil
	}

	var msg domain.IndexSyncMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return domain.IndexSyncMessage{}, &DecodeError{Err: err}
	}
	if err := domain.ValidateIndexSync(msg); err != nil {
		return domain.IndexSyncMessage{}, &DecodeError{Err: err}
	}
	return msg, nil
}

// ErrSkip tells the consumer loop a message was intentionally ignored; it is acked.
var ErrSkip = errors.New("message skipped")
