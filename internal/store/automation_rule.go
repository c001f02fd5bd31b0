package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"worktrack.app/relay/core/db"
	"worktrack.app/relay/internal/model"
)

const automationRuleColumns = `id, org_id, name, key_name, event_types, condition_label,
	condition_code, prompt_template, is_active, priority, created_at, updated_at`

type automationRuleStore struct {
	q db.Querier
}

func newAutomationRuleStore(q db.Querier) AutomationRuleStore {
	return &automationRuleStore{q: q}
}

func (s *automationRuleStore) FindActiveByEventType(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
	rows, err := s.q.Query(ctx, `SELECT `+automationRuleColumns+`
		FROM automation_rules
		WHERE org_id = $1 AND is_active AND $2 = ANY(event_types)
		ORDER BY priority DESC, id`, orgID, eventType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AutomationRule, error) {
		return scanAutomationRule(row)
	})
}

func (s *automationRuleStore) FindByID(ctx context.Context, orgID, id int64) (*model.AutomationRule, error) {
	row := s.q.QueryRow(ctx, `SELECT `+automationRuleColumns+`
		FROM automation_rules WHERE id = $1 AND org_id = $2`, id, orgID)
	rule, err := scanAutomationRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List returns every rule of the org, active or not, in evaluation order.
func (s *automationRuleStore) List(ctx context.Context, orgID int64) ([]model.AutomationRule, error) {
	rows, err := s.q.Query(ctx, `SELECT `+automationRuleColumns+`
		FROM automation_rules
		WHERE org_id = $1
		ORDER BY priority DESC, id`, orgID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AutomationRule, error) {
		return scanAutomationRule(row)
	})
}

func (s *automationRuleStore) Create(ctx context.Context, rule *model.AutomationRule) error {
	row := s.q.QueryRow(ctx, `INSERT INTO automation_rules
		(id, org_id, name, key_name, event_types, condition_label, condition_code, prompt_template, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+automationRuleColumns,
		rule.ID, rule.OrgID, rule.Name, rule.KeyName, eventTypesOrEmpty(rule.EventTypes),
		rule.ConditionLabel, rule.ConditionCode, rule.PromptTemplate, rule.IsActive, rule.Priority)
	created, err := scanAutomationRule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	*rule = created
	return nil
}

func (s *automationRuleStore) Update(ctx context.Context, rule *model.AutomationRule) error {
	row := s.q.QueryRow(ctx, `UPDATE automation_rules SET
		name = $3, key_name = $4, event_types = $5, condition_label = $6, condition_code = $7,
		prompt_template = $8, is_active = $9, priority = $10, updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING `+automationRuleColumns,
		rule.ID, rule.OrgID, rule.Name, rule.KeyName, eventTypesOrEmpty(rule.EventTypes),
		rule.ConditionLabel, rule.ConditionCode, rule.PromptTemplate, rule.IsActive, rule.Priority)
	updated, err := scanAutomationRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	*rule = updated
	return nil
}

func (s *automationRuleStore) Delete(ctx context.Context, orgID, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAutomationRule(row pgx.Row) (model.AutomationRule, error) {
	var r model.AutomationRule
	err := row.Scan(
		&r.ID, &r.OrgID, &r.Name, &r.KeyName, &r.EventTypes, &r.ConditionLabel, &r.ConditionCode,
		&r.PromptTemplate, &r.IsActive, &r.Priority, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func eventTypesOrEmpty(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}
