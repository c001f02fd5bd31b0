package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IndexEntityType is the kind of record an index-sync message refers to.
type IndexEntityType string

const (
	IndexWorkItem          IndexEntityType = "work_item"
	IndexCategory          IndexEntityType = "category"
	IndexCustomFieldValue  IndexEntityType = "custom_field_value"
	IndexCustomFieldSchema IndexEntityType = "custom_field_meta_data"
)

// FlexInt decodes an integer sent either as a JSON number or as a string-encoded integer.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parsing integer %q: %w", data, err)
	}
	*f = FlexInt(v)
	return nil
}

// IndexSyncMessage is the consumer-side instruction for the index-sync pipeline. It is
// either derived from a DomainEvent or decoded from the legacy flat queue shape.
type IndexSyncMessage struct {
	EntityType    IndexEntityType `json:"entity_type"`
	Action        Action          `json:"action"`
	EntityID      FlexInt         `json:"entity_id"`
	OrgID         FlexInt         `json:"org_id"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Timestamp     string          `json:"timestamp"`
	ExternalDocID *string         `json:"doc_id,omitempty"`
}

// IndexSyncFromEvent derives an index-sync message from a domain event.
func IndexSyncFromEvent(e DomainEvent) (IndexSyncMessage, error) {
	entityID, err := strconv.ParseInt(e.EntityID, 10, 64)
	if err != nil {
		return IndexSyncMessage{}, fmt.Errorf("parsing entityId %q: %w", e.EntityID, err)
	}
	orgID, err := strconv.ParseInt(e.OrgID, 10, 64)
	if err != nil {
		return IndexSyncMessage{}, fmt.Errorf("parsing orgId %q: %w", e.OrgID, err)
	}
	return IndexSyncMessage{
		EntityType:    IndexEntityType(e.Entity),
		Action:        e.Action,
		EntityID:      FlexInt(entityID),
		OrgID:         FlexInt(orgID),
		ChangedFields: e.ChangedFields,
		Timestamp:     e.Timestamp,
		ExternalDocID: e.ExternalDocID,
	}, nil
}

// CustomFieldSchemaMessage builds the flat message emitted when a custom field
// definition changes. Domain events have no entity for field definitions, so this path
// uses the legacy shape directly.
func CustomFieldSchemaMessage(action Action, fieldID, orgID int64, changed []string) IndexSyncMessage {
	return IndexSyncMessage{
		EntityType:    IndexCustomFieldSchema,
		Action:        action,
		EntityID:      FlexInt(fieldID),
		OrgID:         FlexInt(orgID),
		ChangedFields: changed,
		Timestamp:     now().UTC().Format(TimestampLayout),
	}
}

// ValidateIndexSync checks the flat shape before it is published or processed.
func ValidateIndexSync(m IndexSyncMessage) error {
	switch m.EntityType {
	case IndexWorkItem, IndexCategory, IndexCustomFieldValue, IndexCustomFieldSchema:
	case "":
		return &ValidationError{Field: "entity_type", Reason: ReasonMissingField}
	default:
		return &ValidationError{Field: "entity_type", Reason: ReasonInvalidEnum, Value: string(m.EntityType)}
	}
	switch m.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	case "":
		return &ValidationError{Field: "action", Reason: ReasonMissingField}
	default:
		return &ValidationError{Field: "action", Reason: ReasonInvalidEnum, Value: string(m.Action)}
	}
	if m.EntityID == 0 {
		return &ValidationError{Field: "entity_id", Reason: ReasonMissingField}
	}
	if m.OrgID == 0 {
		return &ValidationError{Field: "org_id", Reason: ReasonMissingField}
	}
	return nil
}

// MarshalJSON keeps the flat shape's numeric ids on the wire.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}
