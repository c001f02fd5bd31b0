package automation

import (
	"context"
	"log/slog"

	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/model"
)

// PromptRunner executes a rule whose condition held.
type PromptRunner interface {
	Run(ctx context.Context, rule model.AutomationRule, event domain.DomainEvent, data map[string]any) error
}

// LogRunner records the firing and does nothing else. Prompt execution is not wired yet.
type LogRunner struct{}

func (LogRunner) Run(ctx context.Context, rule model.AutomationRule, event domain.DomainEvent, data map[string]any) error {
	metrics.IncRuleFired()
	slog.InfoContext(ctx, "automation rule fired",
		"rule", rule.KeyName,
		"priority", rule.Priority,
		"event_type", event.EventTypeKey(),
		"template_len", len(rule.PromptTemplate))
	return nil
}
