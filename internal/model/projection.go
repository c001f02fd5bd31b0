package model

// Projection is the flattened snapshot of a work item used to render index documents
// and to evaluate automation conditions. Custom fields are keyed by field key name.
type Projection struct {
	WorkItem             WorkItem
	Category             *Category
	CustomFields         map[string]any
	CustomFieldsMetadata map[string]CustomFieldMeta
}

// ConditionData renders the projection as plain maps with camelCase keys, the shape
// condition code is written against (e.g. workItem.priority, customFields.severity).
func (p Projection) ConditionData() map[string]any {
	item := map[string]any{
		"id":          p.WorkItem.ID,
		"orgId":       p.WorkItem.OrgID,
		"title":       p.WorkItem.Title,
		"categoryId":  deref(p.WorkItem.CategoryID),
		"description": deref(p.WorkItem.Description),
		"status":      deref(p.WorkItem.Status),
		"priority":    deref(p.WorkItem.Priority),
		"docId":       deref(p.WorkItem.ExternalDocID),
	}

	var category map[string]any
	if p.Category != nil {
		category = map[string]any{
			"id":      p.Category.ID,
			"name":    p.Category.Name,
			"keyName": p.Category.KeyName,
		}
	}

	fields := make(map[string]any, len(p.CustomFields))
	for k, v := range p.CustomFields {
		fields[k] = v
	}

	meta := make(map[string]any, len(p.CustomFieldsMetadata))
	for k, m := range p.CustomFieldsMetadata {
		meta[k] = map[string]any{
			"id":          m.ID,
			"name":        m.Name,
			"keyName":     m.KeyName,
			"dataType":    string(m.DataType),
			"description": deref(m.Description),
			"enums":       m.Enums,
		}
	}

	return map[string]any{
		"workItem":             item,
		"category":             category,
		"customFields":         fields,
		"customFieldsMetadata": meta,
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
