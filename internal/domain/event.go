package domain

import (
	"errors"
	"fmt"
)

// EventCategory selects the routing key a domain event is published under.
type EventCategory string

const (
	CategoryEntityMutation               EventCategory = "entity-mutation"
	CategoryAutomationDefinitionMutation EventCategory = "automation-definition-mutation"
)

// Entity is the kind of record a domain event describes.
type Entity string

const (
	EntityWorkItem       Entity = "work_item"
	EntityCategory       Entity = "category"
	EntityAutomationRule Entity = "automation_rule"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type TriggerSource string

const (
	TriggeredByUser   TriggerSource = "user"
	TriggeredBySystem TriggerSource = "system"
)

type FieldType string

const (
	FieldTypeStandard FieldType = "standard"
	FieldTypeCustom   FieldType = "custom"
)

// FieldChange records the before/after value of one field in an update.
type FieldChange struct {
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	FieldType FieldType `json:"fieldType"`
}

// DomainEvent is the canonical description of a committed mutation and the payload
// published to the broker. Identifiers are string-encoded integers.
type DomainEvent struct {
	EventID          string                 `json:"eventId,omitempty"`
	Category         EventCategory          `json:"category"`
	Entity           Entity                 `json:"entity"`
	Action           Action                 `json:"action"`
	EntityID         string                 `json:"entityId"`
	ParentWorkItemID string                 `json:"parentWorkItemId,omitempty"`
	OrgID            string                 `json:"orgId"`
	CategoryID       *string                `json:"categoryId"`
	ChangedFields    []string               `json:"changedFields"`
	FieldChanges     map[string]FieldChange `json:"fieldChanges"`
	TriggeredBy      TriggerSource          `json:"triggeredBy"`
	Timestamp        string                 `json:"timestamp"`
	ExternalDocID    *string                `json:"externalDocId,omitempty"`

	// Set only when Entity is automation_rule.
	Name           string `json:"name,omitempty"`
	EventType      string `json:"eventType,omitempty"`
	ConditionLabel string `json:"conditionLabel,omitempty"`
	ConditionCode  string `json:"conditionCode,omitempty"`
	PromptTemplate string `json:"promptTemplate,omitempty"`
}

// EventTypeKey is the "entity.action" key automation rules subscribe to, e.g. "work_item.update".
func (e DomainEvent) EventTypeKey() string {
	return string(e.Entity) + "." + string(e.Action)
}

// RoutingKey is the topic-exchange key the event is published under.
func (e DomainEvent) RoutingKey() string {
	return string(e.Category)
}

// ErrInvalidEvent is wrapped by every ValidationError.
var ErrInvalidEvent = errors.New("invalid domain event")

type ValidationReason string

const (
	ReasonMissingField ValidationReason = "missing"
	ReasonInvalidEnum  ValidationReason = "invalid"
)

type ValidationError struct {
	Field  string
	Reason ValidationReason
	Value  string
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonInvalidEnum {
		return fmt.Sprintf("%s: %s has invalid value %q", ErrInvalidEvent, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s is required", ErrInvalidEvent, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}

// Validate checks that an event is well-formed. It performs no I/O.
func Validate(e DomainEvent) error {
	required := []struct {
		field string
		value string
	}{
		{"category", string(e.Category)},
		{"entity", string(e.Entity)},
		{"action", string(e.Action)},
		{"entityId", e.EntityID},
		{"orgId", e.OrgID},
		{"triggeredBy", string(e.TriggeredBy)},
		{"timestamp", e.Timestamp},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Reason: ReasonMissingField}
		}
	}

	switch e.Category {
	case CategoryEntityMutation, CategoryAutomationDefinitionMutation:
	default:
		return &ValidationError{Field: "category", Reason: ReasonInvalidEnum, Value: string(e.Category)}
	}

	switch e.Entity {
	case EntityWorkItem, EntityCategory, EntityAutomationRule:
	default:
		return &ValidationError{Field: "entity", Reason: ReasonInvalidEnum, Value: string(e.Entity)}
	}

	switch e.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return &ValidationError{Field: "action", Reason: ReasonInvalidEnum, Value: string(e.Action)}
	}

	switch e.TriggeredBy {
	case TriggeredByUser, TriggeredBySystem:
	default:
		return &ValidationError{Field: "triggeredBy", Reason: ReasonInvalidEnum, Value: string(e.TriggeredBy)}
	}

	if e.Entity != EntityCategory && e.Entity != EntityAutomationRule && e.ParentWorkItemID == "" {
		return &ValidationError{Field: "parentWorkItemId", Reason: ReasonMissingField}
	}

	// Automation definitions travel on their own routing key; everything else is an entity mutation.
	wantCategory := CategoryEntityMutation
	if e.Entity == EntityAutomationRule {
		wantCategory = CategoryAutomationDefinitionMutation
	}
	if e.Category != wantCategory {
		return &ValidationError{Field: "category", Reason: ReasonInvalidEnum, Value: string(e.Category)}
	}

	for name, change := range e.FieldChanges {
		switch change.FieldType {
		case FieldTypeStandard, FieldTypeCustom:
		default:
			return &ValidationError{Field: "fieldChanges." + name + ".fieldType", Reason: ReasonInvalidEnum, Value: string(change.FieldType)}
		}
	}

	return nil
}

const redacted = "[redacted]"

// Redacted returns a copy safe to log: field values and automation bodies are masked,
// field names and identifiers are kept.
func (e DomainEvent) Redacted() DomainEvent {
	out := e
	if len(e.FieldChanges) > 0 {
		out.FieldChanges = make(map[string]FieldChange, len(e.FieldChanges))
		for name, change := range e.FieldChanges {
			out.FieldChanges[name] = FieldChange{
				OldValue:  redacted,
				NewValue:  redacted,
				FieldType: change.FieldType,
			}
		}
	}
	if e.ConditionCode != "" {
		out.ConditionCode = redacted
	}
	if e.PromptTemplate != "" {
		out.PromptTemplate = redacted
	}
	out.ChangedFields = append([]string(nil), e.ChangedFields...)
	return out
}
