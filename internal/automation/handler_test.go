package automation_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
	"worktrack.app/relay/internal/queue"
	"worktrack.app/relay/internal/store"
)

func messageFor(event domain.DomainEvent) queue.Message {
	body, err := json.Marshal(event)
	Expect(err).NotTo(HaveOccurred())
	return queue.Message{Body: body, RoutingKey: event.RoutingKey()}
}

func rule(id int64, key, code string, priority int32) model.AutomationRule {
	return model.AutomationRule{
		ID:            id,
		OrgID:         3,
		KeyName:       key,
		EventTypes:    []string{"work_item.update"},
		ConditionCode: code,
		IsActive:      true,
		Priority:      priority,
	}
}

var _ = Describe("Handler", func() {
	var (
		ctx         context.Context
		rules       *mockRuleStore
		projections *mockProjections
		runner      *recordingRunner
		generator   *mockGenerator
		handler     *automation.Handler
		event       domain.DomainEvent
	)

	BeforeEach(func() {
		ctx = context.Background()
		rules = &mockRuleStore{}
		projections = &mockProjections{}
		runner = &recordingRunner{}
		generator = &mockGenerator{generateFn: automation.PassthroughGenerator{}.Generate}
		handler = automation.NewHandler(automation.HandlerDeps{
			Rules:       rules,
			Projections: projections,
			Guard:       automation.NewMemoryGuard(0),
			Runner:      runner,
			Generator:   generator,
		})
		event = domain.WorkItemEvent(domain.ActionUpdate, 42, 3, nil, nil, domain.TriggeredByUser,
			map[string]domain.FieldChange{"status": domain.StandardChange("open", "done")})
	})

	Context("envelope", func() {
		It("skips flat index messages", func() {
			body := []byte(`{"entity_type":"work_item","action":"update","entity_id":42,"org_id":3}`)
			err := handler.Handle(ctx, queue.Message{Body: body})
			Expect(err).To(MatchError(queue.ErrSkip))
		})

		It("returns a DecodeError for garbage", func() {
			err := handler.Handle(ctx, queue.Message{Body: []byte("{")})
			var decodeErr *queue.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
		})

		It("returns a DecodeError for invalid events", func() {
			event.Action = "archive"
			err := handler.Handle(ctx, messageFor(event))
			var decodeErr *queue.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
		})
	})

	Context("entity mutations", func() {
		It("does nothing when no rule matches", func() {
			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(projections.calls).To(BeZero())
			Expect(runner.ran).To(BeEmpty())
		})

		It("fires matching rules in priority order", func() {
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return []model.AutomationRule{
					rule(1, "low", `"status" in changedFields`, 1),
					rule(2, "high", "", 10),
					rule(3, "never", `action == "create"`, 5),
				}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(runner.ran).To(Equal([]string{"high", "low"}))
			Expect(projections.calls).To(Equal(1))
		})

		It("evaluates against the work item projection", func() {
			projections.getFullDataFn = func(ctx context.Context, workItemID, orgID int64) (*model.Projection, error) {
				Expect(workItemID).To(Equal(int64(42)))
				Expect(orgID).To(Equal(int64(3)))
				return &model.Projection{
					WorkItem:     model.WorkItem{ID: 42, OrgID: 3, Title: "Broken login"},
					CustomFields: map[string]any{"severity": 5.0},
				}, nil
			}
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return []model.AutomationRule{rule(1, "severe", `customFields.severity >= 5 && title != ""`, 1)}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(runner.ran).To(ConsistOf("severe"))
		})

		It("falls back to event fields when the projection fails", func() {
			projections.getFullDataFn = func(ctx context.Context, workItemID, orgID int64) (*model.Projection, error) {
				return nil, errors.New("db down")
			}
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return []model.AutomationRule{
					rule(1, "event-only", `action == "update"`, 1),
					rule(2, "needs-item", `customFields.severity >= 5`, 1),
				}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(runner.ran).To(ConsistOf("event-only"))
		})

		It("does not load a projection for deleted items", func() {
			event = domain.WorkItemEvent(domain.ActionDelete, 42, 3, nil, nil, domain.TriggeredByUser, nil)
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				r := rule(1, "on-delete", "", 1)
				r.EventTypes = []string{"work_item.delete"}
				return []model.AutomationRule{r}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(projections.calls).To(BeZero())
			Expect(runner.ran).To(ConsistOf("on-delete"))
		})

		It("caps rules fired per event and ignores redelivery", func() {
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return []model.AutomationRule{
					rule(1, "a", "", 4), rule(2, "b", "", 3), rule(3, "c", "", 2), rule(4, "d", "", 1),
				}, nil
			}
			msg := messageFor(event)

			Expect(handler.Handle(ctx, msg)).To(Succeed())
			Expect(runner.ran).To(Equal([]string{"a", "b", "c"}))

			Expect(handler.Handle(ctx, msg)).To(Succeed())
			Expect(runner.ran).To(HaveLen(3))
		})

		It("keeps going when a rule fails", func() {
			runner.runFn = func(ctx context.Context, r model.AutomationRule) error {
				if r.KeyName == "broken" {
					return errors.New("prompt failed")
				}
				return nil
			}
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return []model.AutomationRule{rule(1, "broken", "", 2), rule(2, "fine", "", 1)}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(runner.ran).To(Equal([]string{"broken", "fine"}))
		})

		It("returns rule store failures", func() {
			rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
				return nil, errors.New("db down")
			}
			Expect(handler.Handle(ctx, messageFor(event))).NotTo(Succeed())
		})
	})

	Context("rule definitions", func() {
		var stored *model.AutomationRule

		BeforeEach(func() {
			stored = &model.AutomationRule{ID: 9, OrgID: 3, KeyName: "escalate", ConditionLabel: "status is done"}
			rules.findByIDFn = func(ctx context.Context, orgID, id int64) (*model.AutomationRule, error) {
				if id != 9 || orgID != 3 {
					return nil, store.ErrNotFound
				}
				copied := *stored
				return &copied, nil
			}
			event = domain.AutomationRuleEvent(domain.ActionCreate, 9, 3, domain.TriggeredByUser,
				domain.AutomationDefinition{Name: "Escalate", EventType: "work_item.update"}, nil)
		})

		It("stores generated condition code", func() {
			generator.generateFn = func(ctx context.Context, r model.AutomationRule) (automation.Generated, error) {
				Expect(r.ConditionLabel).To(Equal("status is done"))
				return automation.Generated{ConditionCode: `status == "done"`}, nil
			}

			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(rules.updated).To(HaveLen(1))
			Expect(rules.updated[0].ConditionCode).To(Equal(`status == "done"`))
		})

		It("skips the write when nothing changed", func() {
			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(rules.updated).To(BeEmpty())
		})

		It("acks rules that no longer exist", func() {
			event = domain.AutomationRuleEvent(domain.ActionUpdate, 10, 3, domain.TriggeredByUser,
				domain.AutomationDefinition{Name: "Gone"}, nil)
			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
			Expect(rules.updated).To(BeEmpty())
		})

		It("ignores deletions", func() {
			event = domain.AutomationRuleEvent(domain.ActionDelete, 9, 3, domain.TriggeredByUser,
				domain.AutomationDefinition{Name: "Escalate"}, nil)
			generator.generateFn = func(ctx context.Context, r model.AutomationRule) (automation.Generated, error) {
				Fail("generator should not run for deletions")
				return automation.Generated{}, nil
			}
			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
		})

		It("returns generation failures", func() {
			generator.generateFn = func(ctx context.Context, r model.AutomationRule) (automation.Generated, error) {
				return automation.Generated{}, automation.ErrInvalidCondition
			}
			Expect(handler.Handle(ctx, messageFor(event))).To(MatchError(automation.ErrInvalidCondition))
			Expect(rules.updated).To(BeEmpty())
		})

		It("acks when the rule is deleted mid-generation", func() {
			generator.generateFn = func(ctx context.Context, r model.AutomationRule) (automation.Generated, error) {
				return automation.Generated{ConditionCode: "true"}, nil
			}
			rules.updateFn = func(ctx context.Context, r *model.AutomationRule) error {
				return store.ErrNotFound
			}
			Expect(handler.Handle(ctx, messageFor(event))).To(Succeed())
		})
	})
})
