package automation

// ConditionReference describes the data a condition is evaluated against, with
// placeholder values. It is served to rule authors and embedded in generation prompts.
func ConditionReference() map[string]any {
	return map[string]any{
		"eventId":       "<event id>",
		"entity":        "work_item | category",
		"action":        "create | update | delete",
		"eventType":     "<entity>.<action>",
		"changedFields": []string{"<field name>"},
		"fieldChanges": map[string]any{
			"<field name>": map[string]any{
				"oldValue":  "<old value>",
				"newValue":  "<new value>",
				"fieldType": "standard | custom",
			},
		},
		"triggeredBy": "user | system",
		"entityId":    "<entity id>",
		"workItemId":  "<work item id>",
		"orgId":       "<org id>",
		"categoryId":  "<category id or nil>",

		"id":          "<work item id>",
		"title":       "<title>",
		"description": "<description>",
		"status":      "<status>",
		"priority":    "<priority>",
		"docId":       "<external document id>",

		"workItem": map[string]any{
			"id":          "<id>",
			"title":       "<title>",
			"description": "<description>",
			"status":      "<status>",
			"priority":    "<priority>",
			"categoryId":  "<category id>",
		},
		"category": map[string]any{
			"id":      "<category id>",
			"name":    "<category name>",
			"keyName": "<category key>",
		},
		"customFields": map[string]any{
			"<custom field key>": "<value>",
		},
		"customFieldsMetadata": map[string]any{
			"<custom field key>": map[string]any{
				"id":          "<field id>",
				"name":        "<field name>",
				"keyName":     "<custom field key>",
				"dataType":    "text | number | boolean | enum",
				"description": "<description>",
				"enums":       []string{"<allowed value>"},
			},
		},
		"event": "<the event fields above, nested>",
	}
}
