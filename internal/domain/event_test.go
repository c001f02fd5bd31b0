package domain_test

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/domain"
)

func validWorkItemEvent() domain.DomainEvent {
	cat := int64(7)
	return domain.WorkItemEvent(domain.ActionUpdate, 42, 3, &cat, nil, domain.TriggeredByUser, map[string]domain.FieldChange{
		"title":    domain.StandardChange("Old", "New"),
		"priority": domain.CustomChange(nil, "high"),
	})
}

var _ = Describe("Validate", func() {
	It("accepts events produced by the builders", func() {
		cat := domain.CategoryEvent(domain.ActionUpdate, 7, 3, domain.TriggeredByUser, map[string]domain.FieldChange{
			"name": domain.StandardChange("Bugs", "Defects"),
		})
		rule := domain.AutomationRuleEvent(domain.ActionCreate, 9, 3, domain.TriggeredByUser, domain.AutomationDefinition{
			Name:      "Escalate",
			EventType: "work_item.update",
		}, nil)

		Expect(domain.Validate(validWorkItemEvent())).To(Succeed())
		Expect(domain.Validate(cat)).To(Succeed())
		Expect(domain.Validate(rule)).To(Succeed())
	})

	DescribeTable("rejects missing required fields",
		func(mutate func(e *domain.DomainEvent), field string) {
			e := validWorkItemEvent()
			mutate(&e)

			err := domain.Validate(e)

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, domain.ErrInvalidEvent)).To(BeTrue())
			var verr *domain.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal(field))
			Expect(verr.Reason).To(Equal(domain.ReasonMissingField))
		},
		Entry("category", func(e *domain.DomainEvent) { e.Category = "" }, "category"),
		Entry("entity", func(e *domain.DomainEvent) { e.Entity = "" }, "entity"),
		Entry("action", func(e *domain.DomainEvent) { e.Action = "" }, "action"),
		Entry("entityId", func(e *domain.DomainEvent) { e.EntityID = "" }, "entityId"),
		Entry("orgId", func(e *domain.DomainEvent) { e.OrgID = "" }, "orgId"),
		Entry("triggeredBy", func(e *domain.DomainEvent) { e.TriggeredBy = "" }, "triggeredBy"),
		Entry("timestamp", func(e *domain.DomainEvent) { e.Timestamp = "" }, "timestamp"),
		Entry("parentWorkItemId on a work item", func(e *domain.DomainEvent) { e.ParentWorkItemID = "" }, "parentWorkItemId"),
	)

	DescribeTable("rejects values outside the enums",
		func(mutate func(e *domain.DomainEvent), field string) {
			e := validWorkItemEvent()
			mutate(&e)

			var verr *domain.ValidationError
			Expect(errors.As(domain.Validate(e), &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal(field))
			Expect(verr.Reason).To(Equal(domain.ReasonInvalidEnum))
		},
		Entry("category", func(e *domain.DomainEvent) { e.Category = "billing" }, "category"),
		Entry("entity", func(e *domain.DomainEvent) { e.Entity = "comment" }, "entity"),
		Entry("action", func(e *domain.DomainEvent) { e.Action = "archive" }, "action"),
		Entry("triggeredBy", func(e *domain.DomainEvent) { e.TriggeredBy = "cron" }, "triggeredBy"),
		Entry("category that does not match the entity", func(e *domain.DomainEvent) {
			e.Category = domain.CategoryAutomationDefinitionMutation
		}, "category"),
		Entry("fieldType", func(e *domain.DomainEvent) {
			e.FieldChanges["title"] = domain.FieldChange{OldValue: "a", NewValue: "b", FieldType: "computed"}
		}, "fieldChanges.title.fieldType"),
	)

	It("does not require parentWorkItemId for categories", func() {
		e := domain.CategoryEvent(domain.ActionDelete, 7, 3, domain.TriggeredBySystem, nil)
		Expect(e.ParentWorkItemID).To(BeEmpty())
		Expect(domain.Validate(e)).To(Succeed())
	})
})

var _ = Describe("builders", func() {
	It("fills the work item envelope", func() {
		e := validWorkItemEvent()

		Expect(e.EventID).NotTo(BeEmpty())
		Expect(e.Category).To(Equal(domain.CategoryEntityMutation))
		Expect(e.EntityID).To(Equal("42"))
		Expect(e.ParentWorkItemID).To(Equal("42"))
		Expect(e.OrgID).To(Equal("3"))
		Expect(e.CategoryID).To(HaveValue(Equal("7")))
		Expect(e.ChangedFields).To(Equal([]string{"priority", "title"}))
		Expect(e.EventTypeKey()).To(Equal("work_item.update"))
		Expect(e.RoutingKey()).To(Equal("entity-mutation"))

		ts, err := time.Parse(domain.TimestampLayout, e.Timestamp)
		Expect(err).NotTo(HaveOccurred())
		Expect(ts).To(BeTemporally("~", time.Now(), time.Minute))
	})

	It("assigns a distinct id to every event", func() {
		Expect(validWorkItemEvent().EventID).NotTo(Equal(validWorkItemEvent().EventID))
	})

	It("routes automation rules on the definition key", func() {
		e := domain.AutomationRuleEvent(domain.ActionUpdate, 9, 3, domain.TriggeredByUser, domain.AutomationDefinition{
			Name:           "Escalate",
			EventType:      "work_item.update",
			PromptTemplate: "notify the owner",
		}, []string{"promptTemplate"})

		Expect(e.RoutingKey()).To(Equal("automation-definition-mutation"))
		Expect(e.CategoryID).To(BeNil())
		Expect(e.EventType).To(Equal("work_item.update"))
	})

	It("serializes with the wire field names", func() {
		raw, err := json.Marshal(validWorkItemEvent())
		Expect(err).NotTo(HaveOccurred())

		var wire map[string]any
		Expect(json.Unmarshal(raw, &wire)).To(Succeed())
		Expect(wire).To(HaveKey("eventId"))
		Expect(wire).To(HaveKeyWithValue("entityId", "42"))
		Expect(wire).To(HaveKeyWithValue("parentWorkItemId", "42"))
		Expect(wire).To(HaveKeyWithValue("categoryId", "7"))
		Expect(wire["fieldChanges"]).To(HaveKey("title"))
		Expect(wire).NotTo(HaveKey("promptTemplate"))
	})
})

var _ = Describe("Redacted", func() {
	It("masks values but keeps names", func() {
		e := validWorkItemEvent()
		e.ConditionCode = "data.priority == 'high'"

		r := e.Redacted()

		Expect(r.FieldChanges).To(HaveLen(2))
		Expect(r.FieldChanges["title"].OldValue).To(Equal("[redacted]"))
		Expect(r.FieldChanges["title"].FieldType).To(Equal(domain.FieldTypeStandard))
		Expect(r.ConditionCode).To(Equal("[redacted]"))
		Expect(r.EntityID).To(Equal("42"))
		Expect(e.FieldChanges["title"].OldValue).To(Equal("Old"))
	})
})
