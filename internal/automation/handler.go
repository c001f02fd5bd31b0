package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
	"worktrack.app/relay/internal/queue"
	"worktrack.app/relay/internal/store"
)

// Handler consumes the automation queue. Entity mutations are matched against rules and
// fire the ones whose condition holds; rule definition changes regenerate the rule's
// condition code.
type Handler struct {
	matcher     *Matcher
	rules       store.AutomationRuleStore
	projections store.ProjectionStore
	guard       ExecutionGuard
	runner      PromptRunner
	generator   ConditionGenerator
}

type HandlerDeps struct {
	Rules       store.AutomationRuleStore
	Projections store.ProjectionStore
	Guard       ExecutionGuard
	Runner      PromptRunner
	Generator   ConditionGenerator
}

func NewHandler(deps HandlerDeps) *Handler {
	guard := deps.Guard
	if guard == nil {
		guard = NewMemoryGuard(defaultGuardTTL)
	}
	runner := deps.Runner
	if runner == nil {
		runner = LogRunner{}
	}
	generator := deps.Generator
	if generator == nil {
		generator = PassthroughGenerator{}
	}
	return &Handler{
		matcher:     NewMatcher(deps.Rules),
		rules:       deps.Rules,
		projections: deps.Projections,
		guard:       guard,
		runner:      runner,
		generator:   generator,
	}
}

func (h *Handler) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.automation"})

	category, err := queue.PeekCategory(msg.Body)
	if err != nil {
		return err
	}
	if category == "" {
		// Flat index-sync messages share the entity-mutation key but carry no envelope.
		return queue.ErrSkip
	}

	event, err := queue.DecodeEvent(msg.Body)
	if err != nil {
		return err
	}

	fields := logger.LogFields{EventID: logger.Ptr(event.EventID)}
	if orgID, err := strconv.ParseInt(event.OrgID, 10, 64); err == nil {
		fields.OrgID = logger.Ptr(orgID)
	}
	ctx = logger.WithLogFields(ctx, fields)

	sc := logger.StartSpan(ctx, "automation.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.category", string(event.Category)),
			attribute.String("event.type", event.EventTypeKey()),
			attribute.String("event.entity_id", event.EntityID),
		))
	defer sc.End()
	ctx = sc.Context()

	switch event.Category {
	case domain.CategoryEntityMutation:
		err = h.handleMutation(ctx, event)
	case domain.CategoryAutomationDefinitionMutation:
		err = h.handleDefinition(ctx, event)
	}
	if err != nil {
		sc.RecordError(err)
	}
	return err
}

func (h *Handler) handleMutation(ctx context.Context, event domain.DomainEvent) error {
	rules, err := h.matcher.Match(ctx, event)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		slog.DebugContext(ctx, "no automation rules matched", "event_type", event.EventTypeKey())
		return nil
	}

	data := ConditionData(event, h.loadProjection(ctx, event))

	fired := 0
	for _, rule := range rules {
		ruleCtx := logger.WithLogFields(ctx, logger.LogFields{RuleID: logger.Ptr(rule.ID)})

		if !Evaluate(rule.ConditionCode, data) {
			slog.DebugContext(ruleCtx, "automation condition not met", "rule", rule.KeyName)
			continue
		}

		ran, err := h.run(ruleCtx, rule, event, data)
		if err != nil {
			return err
		}
		if ran {
			fired++
		}
	}

	slog.InfoContext(ctx, "automation rules evaluated",
		"event_type", event.EventTypeKey(),
		"matched", len(rules),
		"fired", fired)
	return nil
}

// run fires one rule under the execution guard. Runner failures are logged so the
// remaining rules still get their turn.
func (h *Handler) run(ctx context.Context, rule model.AutomationRule, event domain.DomainEvent, data map[string]any) (bool, error) {
	exec := Execution{
		EventID:    event.EventID,
		RuleID:     rule.ID,
		EntityType: string(event.Entity),
		EntityID:   event.EntityID,
	}

	decision, err := h.guard.Begin(ctx, exec)
	if err != nil {
		return false, fmt.Errorf("execution guard: %w", err)
	}
	if !decision.Allowed {
		slog.InfoContext(ctx, "automation rule execution blocked", "rule", rule.KeyName, "reason", decision.Reason)
		return false, nil
	}
	defer h.guard.End(ctx, exec)

	if err := h.runner.Run(ctx, rule, event, data); err != nil {
		slog.ErrorContext(ctx, "automation rule failed", "rule", rule.KeyName, "error", err)
		return false, nil
	}
	return true, nil
}

// loadProjection fetches the work item snapshot conditions may reference. Any failure
// leaves conditions with the event fields alone.
func (h *Handler) loadProjection(ctx context.Context, event domain.DomainEvent) *model.Projection {
	if event.Entity != domain.EntityWorkItem || event.Action == domain.ActionDelete || h.projections == nil {
		return nil
	}

	workItemID, err := strconv.ParseInt(event.EntityID, 10, 64)
	if err != nil {
		return nil
	}
	orgID, err := strconv.ParseInt(event.OrgID, 10, 64)
	if err != nil {
		return nil
	}

	projection, err := h.projections.GetFullData(ctx, workItemID, orgID)
	if err != nil {
		slog.WarnContext(ctx, "work item data unavailable, evaluating on event fields",
			"work_item_id", workItemID, "error", err)
		return nil
	}
	return projection
}

func (h *Handler) handleDefinition(ctx context.Context, event domain.DomainEvent) error {
	if event.Action == domain.ActionDelete {
		return nil
	}

	ruleID, err := strconv.ParseInt(event.EntityID, 10, 64)
	if err != nil {
		return &queue.DecodeError{Err: fmt.Errorf("rule id %q: %w", event.EntityID, err)}
	}
	orgID, err := strconv.ParseInt(event.OrgID, 10, 64)
	if err != nil {
		return &queue.DecodeError{Err: fmt.Errorf("org id %q: %w", event.OrgID, err)}
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{RuleID: logger.Ptr(ruleID)})

	rule, err := h.rules.FindByID(ctx, orgID, ruleID)
	if errors.Is(err, store.ErrNotFound) {
		slog.InfoContext(ctx, "automation rule no longer exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading rule: %w", err)
	}

	generated, err := h.generator.Generate(ctx, *rule)
	if err != nil {
		return err
	}
	if generated.ConditionCode == rule.ConditionCode && generated.PromptTemplate == rule.PromptTemplate {
		slog.DebugContext(ctx, "automation rule unchanged")
		return nil
	}

	rule.ConditionCode = generated.ConditionCode
	rule.PromptTemplate = generated.PromptTemplate
	if err := h.rules.Update(ctx, rule); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(ctx, "automation rule deleted during generation, skipping")
			return nil
		}
		return fmt.Errorf("saving generated condition: %w", err)
	}

	slog.InfoContext(ctx, "automation rule condition updated", "rule", rule.KeyName)
	return nil
}
