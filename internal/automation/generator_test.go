package automation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"

	"worktrack.app/relay/common/llm"
	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/model"
)

var _ = Describe("LLMGenerator", func() {
	var (
		client    *mockLLM
		generator *automation.LLMGenerator
		rule      model.AutomationRule
	)

	BeforeEach(func() {
		client = &mockLLM{}
		generator = automation.NewImmediateLLMGenerator(client)
		rule = model.AutomationRule{
			ID:             9,
			Name:           "Escalate bugs",
			EventTypes:     []string{"work_item.update"},
			ConditionLabel: "status changed to done",
			ConditionCode:  "",
			PromptTemplate: "Summarize {{title}}",
		}
	})

	It("keeps rules without a label", func() {
		rule.ConditionLabel = " "
		rule.ConditionCode = `status == "done"`

		got, err := generator.Generate(context.Background(), rule)

		Expect(err).NotTo(HaveOccurred())
		Expect(got.ConditionCode).To(Equal(`status == "done"`))
		Expect(client.calls).To(BeZero())
	})

	It("asks for a structured condition and returns it", func() {
		var seen llm.Request
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			seen = req
			return &llm.Response{}, fillCondition(result, `fieldChanges.status.newValue == "done"`)
		}

		got, err := generator.Generate(context.Background(), rule)

		Expect(err).NotTo(HaveOccurred())
		Expect(got.ConditionCode).To(Equal(`fieldChanges.status.newValue == "done"`))
		Expect(got.PromptTemplate).To(Equal("Summarize {{title}}"))
		Expect(seen.SchemaName).To(Equal("condition"))
		Expect(seen.UserPrompt).To(ContainSubstring("status changed to done"))
		Expect(seen.UserPrompt).To(ContainSubstring("work_item.update"))
		Expect(seen.SystemPrompt).To(ContainSubstring("customFieldsMetadata"))
		Expect(*seen.Temperature).To(BeZero())
	})

	It("rejects code that does not parse", func() {
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			return &llm.Response{}, fillCondition(result, `status ==`)
		}

		_, err := generator.Generate(context.Background(), rule)
		Expect(err).To(MatchError(automation.ErrInvalidCondition))
	})

	It("retries transient failures", func() {
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			if client.calls < 3 {
				return nil, llm.ErrEmptyResponse
			}
			return &llm.Response{}, fillCondition(result, `action == "update"`)
		}

		got, err := generator.Generate(context.Background(), rule)

		Expect(err).NotTo(HaveOccurred())
		Expect(got.ConditionCode).To(Equal(`action == "update"`))
		Expect(client.calls).To(Equal(3))
	})

	It("gives up after three attempts", func() {
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			return nil, errors.New("connection reset")
		}

		_, err := generator.Generate(context.Background(), rule)

		Expect(err).To(HaveOccurred())
		Expect(client.calls).To(Equal(3))
	})

	It("does not retry client errors", func() {
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			return nil, &openai.Error{
				StatusCode: http.StatusBadRequest,
				Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil),
				Response:   &http.Response{StatusCode: http.StatusBadRequest},
			}
		}

		_, err := generator.Generate(context.Background(), rule)

		Expect(err).To(HaveOccurred())
		Expect(client.calls).To(Equal(1))
	})
})

var _ = Describe("PassthroughGenerator", func() {
	It("returns the rule as written", func() {
		rule := model.AutomationRule{ConditionCode: `a == 1`, PromptTemplate: "t"}
		got, err := automation.PassthroughGenerator{}.Generate(context.Background(), rule)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(automation.Generated{ConditionCode: `a == 1`, PromptTemplate: "t"}))
	})
})

// fillCondition decodes a model reply into the generator's result value.
func fillCondition(result any, code string) error {
	body, err := json.Marshal(map[string]string{"condition_code": code, "reasoning": "test"})
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}
