package handler_test

import (
	"context"

	"worktrack.app/relay/internal/model"
	"worktrack.app/relay/internal/service"
)

type mockAutomationRuleService struct {
	getFn    func(ctx context.Context, orgID, ruleID int64) (*model.AutomationRule, error)
	listFn   func(ctx context.Context, orgID int64) ([]model.AutomationRule, error)
	createFn func(ctx context.Context, orgID int64, params service.CreateRuleParams) (*model.AutomationRule, error)
	updateFn func(ctx context.Context, orgID, ruleID int64, params service.UpdateRuleParams) (*model.AutomationRule, error)
	deleteFn func(ctx context.Context, orgID, ruleID int64) error
}

func (m *mockAutomationRuleService) Get(ctx context.Context, orgID, ruleID int64) (*model.AutomationRule, error) {
	if m.getFn != nil {
		return m.getFn(ctx, orgID, ruleID)
	}
	return nil, service.ErrRuleNotFound
}

func (m *mockAutomationRuleService) List(ctx context.Context, orgID int64) ([]model.AutomationRule, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orgID)
	}
	return nil, nil
}

func (m *mockAutomationRuleService) Create(ctx context.Context, orgID int64, params service.CreateRuleParams) (*model.AutomationRule, error) {
	if m.createFn != nil {
		return m.createFn(ctx, orgID, params)
	}
	return nil, nil
}

func (m *mockAutomationRuleService) Update(ctx context.Context, orgID, ruleID int64, params service.UpdateRuleParams) (*model.AutomationRule, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, orgID, ruleID, params)
	}
	return nil, service.ErrRuleNotFound
}

func (m *mockAutomationRuleService) Delete(ctx context.Context, orgID, ruleID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, orgID, ruleID)
	}
	return nil
}

type mockSearchService struct {
	searchFn func(ctx context.Context, orgID int64, query string, limit int) ([]int64, error)
}

func (m *mockSearchService) Search(ctx context.Context, orgID int64, query string, limit int) ([]int64, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, orgID, query, limit)
	}
	return nil, nil
}
