package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"worktrack.app/relay/common"
	"worktrack.app/relay/common/id"
	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
	"worktrack.app/relay/internal/store"
)

var (
	ErrInvalidRule   = errors.New("invalid automation rule")
	ErrRuleNotFound  = errors.New("automation rule not found")
	ErrRuleNameTaken = errors.New("automation rule with this name already exists")
)

type CreateRuleParams struct {
	Name           string
	EventTypes     []string
	ConditionLabel string
	ConditionCode  string
	PromptTemplate string
	Priority       int32
	IsActive       *bool
}

// UpdateRuleParams applies only the non-nil fields.
type UpdateRuleParams struct {
	Name           *string
	EventTypes     []string
	ConditionLabel *string
	ConditionCode  *string
	PromptTemplate *string
	Priority       *int32
	IsActive       *bool
}

type AutomationRuleService interface {
	Get(ctx context.Context, orgID, ruleID int64) (*model.AutomationRule, error)
	List(ctx context.Context, orgID int64) ([]model.AutomationRule, error)
	Create(ctx context.Context, orgID int64, params CreateRuleParams) (*model.AutomationRule, error)
	Update(ctx context.Context, orgID, ruleID int64, params UpdateRuleParams) (*model.AutomationRule, error)
	Delete(ctx context.Context, orgID, ruleID int64) error
}

type automationRuleService struct {
	rules    store.AutomationRuleStore
	txRunner TxRunner
	events   EventEmitter
}

func NewAutomationRuleService(rules store.AutomationRuleStore, txRunner TxRunner, events EventEmitter) AutomationRuleService {
	return &automationRuleService{rules: rules, txRunner: txRunner, events: events}
}

func (s *automationRuleService) Get(ctx context.Context, orgID, ruleID int64) (*model.AutomationRule, error) {
	rule, err := s.rules.FindByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, mapRuleErr(err)
	}
	return rule, nil
}

func (s *automationRuleService) List(ctx context.Context, orgID int64) ([]model.AutomationRule, error) {
	rules, err := s.rules.List(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing automation rules: %w", err)
	}
	return rules, nil
}

func (s *automationRuleService) Create(ctx context.Context, orgID int64, params CreateRuleParams) (*model.AutomationRule, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if strings.TrimSpace(params.PromptTemplate) == "" {
		return nil, fmt.Errorf("%w: prompt template is required", ErrInvalidRule)
	}
	if err := validateEventTypes(params.EventTypes); err != nil {
		return nil, err
	}
	if err := validateCondition(params.ConditionCode); err != nil {
		return nil, err
	}

	keyName, err := common.KeyName(name, "rule")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	rule := &model.AutomationRule{
		ID:             id.New(),
		OrgID:          orgID,
		Name:           name,
		KeyName:        keyName,
		EventTypes:     params.EventTypes,
		ConditionLabel: strings.TrimSpace(params.ConditionLabel),
		ConditionCode:  strings.TrimSpace(params.ConditionCode),
		PromptTemplate: params.PromptTemplate,
		Priority:       params.Priority,
		IsActive:       params.IsActive == nil || *params.IsActive,
	}

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		return stores.AutomationRules().Create(ctx, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("creating automation rule: %w", mapRuleErr(err))
	}

	s.emit(ctx, domain.ActionCreate, rule, []string{"name", "eventTypes", "conditionLabel", "promptTemplate"})
	return rule, nil
}

func (s *automationRuleService) Update(ctx context.Context, orgID, ruleID int64, params UpdateRuleParams) (*model.AutomationRule, error) {
	if params.EventTypes != nil {
		if err := validateEventTypes(params.EventTypes); err != nil {
			return nil, err
		}
	}
	if params.ConditionCode != nil {
		if err := validateCondition(*params.ConditionCode); err != nil {
			return nil, err
		}
	}

	var (
		rule    *model.AutomationRule
		changed []string
	)
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		var err error
		rule, err = stores.AutomationRules().FindByID(ctx, orgID, ruleID)
		if err != nil {
			return err
		}

		changed, err = applyRuleUpdate(rule, params)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		return stores.AutomationRules().Update(ctx, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("updating automation rule: %w", mapRuleErr(err))
	}

	if len(changed) > 0 {
		s.emit(ctx, domain.ActionUpdate, rule, changed)
	}
	return rule, nil
}

func (s *automationRuleService) Delete(ctx context.Context, orgID, ruleID int64) error {
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		return stores.AutomationRules().Delete(ctx, orgID, ruleID)
	})
	if err != nil {
		return fmt.Errorf("deleting automation rule: %w", mapRuleErr(err))
	}
	return nil
}

// emit announces a committed definition change so the automation consumer can
// (re)generate its condition. Rules not subscribed to any event need no condition.
func (s *automationRuleService) emit(ctx context.Context, action domain.Action, rule *model.AutomationRule, changed []string) {
	if len(rule.EventTypes) == 0 {
		return
	}
	s.events.Emit(ctx, domain.AutomationRuleEvent(action, rule.ID, rule.OrgID, domain.TriggeredByUser,
		domain.AutomationDefinition{
			Name:           rule.Name,
			EventType:      strings.Join(rule.EventTypes, ","),
			ConditionLabel: rule.ConditionLabel,
			ConditionCode:  rule.ConditionCode,
			PromptTemplate: rule.PromptTemplate,
		}, changed))
}

func applyRuleUpdate(rule *model.AutomationRule, params UpdateRuleParams) ([]string, error) {
	var changed []string

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidRule)
		}
		if name != rule.Name {
			keyName, err := common.KeyName(name, "rule")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			rule.Name = name
			changed = append(changed, "name")
			if keyName != rule.KeyName {
				rule.KeyName = keyName
				changed = append(changed, "keyName")
			}
		}
	}
	if params.EventTypes != nil && !slices.Equal(params.EventTypes, rule.EventTypes) {
		rule.EventTypes = params.EventTypes
		changed = append(changed, "eventTypes")
	}
	if params.ConditionLabel != nil {
		label := strings.TrimSpace(*params.ConditionLabel)
		if label != rule.ConditionLabel {
			rule.ConditionLabel = label
			changed = append(changed, "conditionLabel")
		}
	}
	if params.ConditionCode != nil {
		code := strings.TrimSpace(*params.ConditionCode)
		if code != rule.ConditionCode {
			rule.ConditionCode = code
			changed = append(changed, "conditionCode")
		}
	}
	if params.PromptTemplate != nil {
		if strings.TrimSpace(*params.PromptTemplate) == "" {
			return nil, fmt.Errorf("%w: prompt template is required", ErrInvalidRule)
		}
		if *params.PromptTemplate != rule.PromptTemplate {
			rule.PromptTemplate = *params.PromptTemplate
			changed = append(changed, "promptTemplate")
		}
	}
	if params.Priority != nil && *params.Priority != rule.Priority {
		rule.Priority = *params.Priority
		changed = append(changed, "priority")
	}
	if params.IsActive != nil && *params.IsActive != rule.IsActive {
		rule.IsActive = *params.IsActive
		changed = append(changed, "isActive")
	}

	return changed, nil
}

// validateEventTypes accepts "entity.action" keys for entities that emit mutations.
func validateEventTypes(types []string) error {
	for _, t := range types {
		entity, action, ok := strings.Cut(t, ".")
		if !ok {
			return fmt.Errorf("%w: event type %q must look like entity.action", ErrInvalidRule, t)
		}
		switch domain.Entity(entity) {
		case domain.EntityWorkItem, domain.EntityCategory:
		default:
			return fmt.Errorf("%w: unknown entity in event type %q", ErrInvalidRule, t)
		}
		switch domain.Action(action) {
		case domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete:
		default:
			return fmt.Errorf("%w: unknown action in event type %q", ErrInvalidRule, t)
		}
	}
	return nil
}

func validateCondition(code string) error {
	if err := automation.ValidateSyntax(code); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

func mapRuleErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRuleNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrRuleNameTaken
	}
	return err
}
