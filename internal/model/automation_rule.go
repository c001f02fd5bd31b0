package model

import (
	"slices"
	"time"
)

// AutomationRule is a user-authored trigger: when an event whose "entity.action" key is in
// EventTypes occurs and ConditionCode evaluates true, PromptTemplate is executed.
// ConditionLabel is the natural-language condition ConditionCode is generated from.
type AutomationRule struct {
	ID             int64     `json:"id"`
	OrgID          int64     `json:"org_id"`
	Name           string    `json:"name"`
	KeyName        string    `json:"key_name"`
	EventTypes     []string  `json:"event_types"`
	ConditionLabel string    `json:"condition_label"`
	ConditionCode  string    `json:"condition_code"`
	PromptTemplate string    `json:"prompt_template"`
	IsActive       bool      `json:"is_active"`
	Priority       int32     `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r AutomationRule) Subscribes(eventType string) bool {
	return slices.Contains(r.EventTypes, eventType)
}

// SortByPriority orders rules highest priority first; ties keep ascending id order.
func SortByPriority(rules []AutomationRule) {
	slices.SortStableFunc(rules, func(a, b AutomationRule) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
