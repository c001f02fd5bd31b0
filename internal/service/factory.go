package service

import (
	"worktrack.app/relay/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	events   EventEmitter
	docs     DocumentSearcher
}

func NewServices(stores *store.Stores, txRunner TxRunner, events EventEmitter, docs DocumentSearcher) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		events:   events,
		docs:     docs,
	}
}

func (s *Services) AutomationRules() AutomationRuleService {
	return NewAutomationRuleService(s.stores.AutomationRules(), s.txRunner, s.events)
}

func (s *Services) Search() SearchService {
	return NewSearchService(s.docs, s.stores.WorkItems())
}
