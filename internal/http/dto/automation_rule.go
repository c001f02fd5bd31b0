package dto

import (
	"time"

	"worktrack.app/relay/internal/model"
)

type CreateAutomationRuleRequest struct {
	Name           string   `json:"name" binding:"required,max=255"`
	EventTypes     []string `json:"event_types" binding:"omitempty,dive,required,max=64"`
	ConditionLabel string   `json:"condition_label" binding:"max=2000"`
	ConditionCode  string   `json:"condition_code" binding:"max=10000"`
	PromptTemplate string   `json:"prompt_template" binding:"required,max=20000"`
	Priority       int32    `json:"priority"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// UpdateAutomationRuleRequest leaves omitted fields unchanged.
type UpdateAutomationRuleRequest struct {
	Name           *string  `json:"name,omitempty" binding:"omitempty,max=255"`
	EventTypes     []string `json:"event_types,omitempty" binding:"omitempty,dive,required,max=64"`
	ConditionLabel *string  `json:"condition_label,omitempty" binding:"omitempty,max=2000"`
	ConditionCode  *string  `json:"condition_code,omitempty" binding:"omitempty,max=10000"`
	PromptTemplate *string  `json:"prompt_template,omitempty" binding:"omitempty,max=20000"`
	Priority       *int32   `json:"priority,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

type AutomationRuleResponse struct {
	ID             int64     `json:"id,string"`
	OrgID          int64     `json:"org_id,string"`
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

func ToAutomationRuleResponse(r *model.AutomationRule) AutomationRuleResponse {
	eventTypes := r.EventTypes
	if eventTypes == nil {
		eventTypes = []string{}
	}
	return AutomationRuleResponse{
		ID:             r.ID,
		OrgID:          r.OrgID,
		Name:           r.Name,
		KeyName:        r.KeyName,
		EventTypes:     eventTypes,
		ConditionLabel: r.ConditionLabel,
		ConditionCode:  r.ConditionCode,
		PromptTemplate: r.PromptTemplate,
		IsActive:       r.IsActive,
		Priority:       r.Priority,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type AutomationRuleListResponse struct {
	AutomationRules []AutomationRuleResponse `json:"automation_rules"`
}

func ToAutomationRuleListResponse(rules []model.AutomationRule) AutomationRuleListResponse {
	out := make([]AutomationRuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, ToAutomationRuleResponse(&rules[i]))
	}
	return AutomationRuleListResponse{AutomationRules: out}
}

type ValidateConditionRequest struct {
	ConditionCode string `json:"condition_code" binding:"max=10000"`
}

type ValidateConditionResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
