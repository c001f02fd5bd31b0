package automation_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
)

var _ = Describe("Matcher", func() {
	var (
		rules   *mockRuleStore
		matcher *automation.Matcher
		event   domain.DomainEvent
	)

	BeforeEach(func() {
		rules = &mockRuleStore{}
		matcher = automation.NewMatcher(rules)
		event = domain.WorkItemEvent(domain.ActionUpdate, 42, 3, nil, nil, domain.TriggeredByUser, nil)
	})

	It("queries by org and event type and orders by priority", func() {
		var gotOrg int64
		var gotType string
		rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
			gotOrg, gotType = orgID, eventType
			return []model.AutomationRule{
				{ID: 2, KeyName: "low", Priority: 1, IsActive: true, EventTypes: []string{"work_item.update"}},
				{ID: 1, KeyName: "high", Priority: 9, IsActive: true, EventTypes: []string{"work_item.update"}},
				{ID: 3, KeyName: "inactive", Priority: 5, IsActive: false, EventTypes: []string{"work_item.update"}},
				{ID: 4, KeyName: "other", Priority: 5, IsActive: true, EventTypes: []string{"work_item.create"}},
			}, nil
		}

		matched, err := matcher.Match(context.Background(), event)

		Expect(err).NotTo(HaveOccurred())
		Expect(gotOrg).To(Equal(int64(3)))
		Expect(gotType).To(Equal("work_item.update"))
		Expect(matched).To(HaveLen(2))
		Expect(matched[0].KeyName).To(Equal("high"))
		Expect(matched[1].KeyName).To(Equal("low"))
	})

	It("rejects a malformed org id", func() {
		event.OrgID = "abc"
		_, err := matcher.Match(context.Background(), event)
		Expect(err).To(HaveOccurred())
	})

	It("wraps store errors", func() {
		boom := errors.New("db down")
		rules.findActiveFn = func(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error) {
			return nil, boom
		}
		_, err := matcher.Match(context.Background(), event)
		Expect(err).To(MatchError(boom))
	})
})
