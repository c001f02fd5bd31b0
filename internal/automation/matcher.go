package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
	"worktrack.app/relay/internal/store"
)

// Matcher finds the active rules subscribed to an event.
type Matcher struct {
	rules store.AutomationRuleStore
}

func NewMatcher(rules store.AutomationRuleStore) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the org's active rules for the event's "entity.action" key, highest
// priority first.
func (m *Matcher) Match(ctx context.Context, event domain.DomainEvent) ([]model.AutomationRule, error) {
	orgID, err := strconv.ParseInt(event.OrgID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing org id %q: %w", event.OrgID, err)
	}

	eventType := event.EventTypeKey()
	rules, err := m.rules.FindActiveByEventType(ctx, orgID, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding rules for %s: %w", eventType, err)
	}

	matched := rules[:0]
	for _, r := range rules {
		if r.IsActive && r.Subscribes(eventType) {
			matched = append(matched, r)
		}
	}
	model.SortByPriority(matched)

	slog.DebugContext(ctx, "matched automation rules", "event_type", eventType, "count", len(matched))
	return matched, nil
}
