package domain

import (
	"sort"
	"strconv"
	"time"

	"worktrack.app/relay/common/id"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	now         = time.Now
	newEventID  = id.NewString
	formatInt64 = func(v int64) string { return strconv.FormatInt(v, 10) }
)

// AutomationDefinition carries the rule-specific fields of an automation_rule event.
type AutomationDefinition struct {
	Name           string
	EventType      string
	ConditionLabel string
	ConditionCode  string
	PromptTemplate string
}

// StandardChange describes a change to a built-in work item column.
func StandardChange(oldValue, newValue any) FieldChange {
	return FieldChange{OldValue: oldValue, NewValue: newValue, FieldType: FieldTypeStandard}
}

// CustomChange describes a change to a custom field value.
func CustomChange(oldValue, newValue any) FieldChange {
	return FieldChange{OldValue: oldValue, NewValue: newValue, FieldType: FieldTypeCustom}
}

// WorkItemEvent builds an entity-mutation event for a work item. Custom field value
// changes are reported through this builder too since they belong to the work item.
// On create, changes should list every populated field with a nil old value. docID is
// the item's index document id, if any; deletes need it since the row is gone by the
// time the index consumer runs.
func WorkItemEvent(action Action, workItemID, orgID int64, categoryID *int64, docID *string, by TriggerSource, changes map[string]FieldChange) DomainEvent {
	itemID := formatInt64(workItemID)
	var category *string
	if categoryID != nil {
		category = ptr(formatInt64(*categoryID))
	}
	return DomainEvent{
		EventID:          newEventID(),
		Category:         CategoryEntityMutation,
		Entity:           EntityWorkItem,
		Action:           action,
		EntityID:         itemID,
		ParentWorkItemID: itemID,
		OrgID:            formatInt64(orgID),
		CategoryID:       category,
		ExternalDocID:    docID,
		ChangedFields:    changedFields(changes),
		FieldChanges:     nonNilChanges(changes),
		TriggeredBy:      by,
		Timestamp:        now().UTC().Format(TimestampLayout),
	}
}

// CategoryEvent builds an entity-mutation event for a category. A rename is an update
// whose changes include "name"; the index consumer cascades it to every work item.
func CategoryEvent(action Action, categoryID, orgID int64, by TriggerSource, changes map[string]FieldChange) DomainEvent {
	catID := formatInt64(categoryID)
	return DomainEvent{
		EventID:       newEventID(),
		Category:      CategoryEntityMutation,
		Entity:        EntityCategory,
		Action:        action,
		EntityID:      catID,
		OrgID:         formatInt64(orgID),
		CategoryID:    ptr(catID),
		ChangedFields: changedFields(changes),
		FieldChanges:  nonNilChanges(changes),
		TriggeredBy:   by,
		Timestamp:     now().UTC().Format(TimestampLayout),
	}
}

// AutomationRuleEvent builds an automation-definition-mutation event, emitted when a
// rule is created or edited so its condition code can be (re)generated.
func AutomationRuleEvent(action Action, ruleID, orgID int64, by TriggerSource, def AutomationDefinition, changed []string) DomainEvent {
	if changed == nil {
		changed = []string{}
	}
	return DomainEvent{
		EventID:        newEventID(),
		Category:       CategoryAutomationDefinitionMutation,
		Entity:         EntityAutomationRule,
		Action:         action,
		EntityID:       formatInt64(ruleID),
		OrgID:          formatInt64(orgID),
		ChangedFields:  changed,
		FieldChanges:   map[string]FieldChange{},
		TriggeredBy:    by,
		Timestamp:      now().UTC().Format(TimestampLayout),
		Name:           def.Name,
		EventType:      def.EventType,
		ConditionLabel: def.ConditionLabel,
		ConditionCode:  def.ConditionCode,
		PromptTemplate: def.PromptTemplate,
	}
}

func changedFields(changes map[string]FieldChange) []string {
	fields := make([]string, 0, len(changes))
	for name := range changes {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

func nonNilChanges(changes map[string]FieldChange) map[string]FieldChange {
	if changes == nil {
		return map[string]FieldChange{}
	}
	return changes
}

func ptr[T any](v T) *T {
	return &v
}
