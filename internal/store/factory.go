package store

import (
	"worktrack.app/relay/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) WorkItems() WorkItemStore {
	return newWorkItemStore(s.q)
}

func (s *Stores) AutomationRules() AutomationRuleStore {
	return newAutomationRuleStore(s.q)
}

func (s *Stores) Projections() ProjectionStore {
	return newProjectionStore(s.q)
}
