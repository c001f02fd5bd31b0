package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"worktrack.app/relay/common/llm"
	"worktrack.app/relay/internal/model"
)

// ErrInvalidCondition is returned when generated condition code does not parse.
var ErrInvalidCondition = errors.New("generated condition is invalid")

// Generated is the derived part of a rule definition.
type Generated struct {
	ConditionCode  string
	PromptTemplate string
}

// ConditionGenerator derives executable condition code for a rule definition.
type ConditionGenerator interface {
	Generate(ctx context.Context, rule model.AutomationRule) (Generated, error)
}

// PassthroughGenerator keeps whatever the author wrote.
type PassthroughGenerator struct{}

func (PassthroughGenerator) Generate(ctx context.Context, rule model.AutomationRule) (Generated, error) {
	return Generated{ConditionCode: rule.ConditionCode, PromptTemplate: rule.PromptTemplate}, nil
}

type conditionResponse struct {
	ConditionCode string `json:"condition_code" jsonschema:"description=Boolean expression over the event data. Empty when the rule should always run."`
	Reasoning     string `json:"reasoning" jsonschema:"description=One sentence explaining how the expression implements the condition."`
}

const conditionSystemPrompt = `You translate a natural-language condition into a boolean expression in the expr language.

The expression is evaluated against this data (placeholder values shown):
%s

Rules:
- Reference fields directly (status == "done") or through data (data.customFields.severity > 3).
- Use "in" for list membership: "status" in changedFields.
- Use ?. when a value can be nil: category?.keyName == "bug".
- Use only comparisons, boolean operators and expr's built-in functions.
- Return an empty expression if the condition is always true.`

const maxGenerationAttempts = 3

// LLMGenerator asks a language model to turn a rule's ConditionLabel into condition code.
// Rules without a label keep their existing code.
type LLMGenerator struct {
	client  llm.Client
	backoff func() backoff.BackOff
}

func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{
		client: client,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			return backoff.WithMaxRetries(b, maxGenerationAttempts-1)
		},
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, rule model.AutomationRule) (Generated, error) {
	label := strings.TrimSpace(rule.ConditionLabel)
	if label == "" {
		return PassthroughGenerator{}.Generate(ctx, rule)
	}

	reference, err := json.MarshalIndent(ConditionReference(), "", "  ")
	if err != nil {
		return Generated{}, fmt.Errorf("rendering condition reference: %w", err)
	}

	req := llm.Request{
		SystemPrompt:      fmt.Sprintf(conditionSystemPrompt, reference),
		UserPrompt:        fmt.Sprintf("Rule %q runs on %s.\nCondition: %s", rule.Name, strings.Join(rule.EventTypes, ", "), label),
		SchemaName:        "condition",
		Schema:            llm.GenerateSchema[conditionResponse](),
		SchemaDescription: "Generated automation rule condition",
		MaxTokens:         500,
		Temperature:       llm.Temp(0),
	}

	var out conditionResponse
	attempt := 0
	op := func() error {
		attempt++
		_, err := g.client.Chat(ctx, req, &out)
		if err == nil {
			return nil
		}
		if !llm.IsRetryable(ctx, err) {
			return backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "condition generation failed, retrying", "attempt", attempt, "error", err)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(g.backoff(), ctx)); err != nil {
		return Generated{}, fmt.Errorf("generating condition: %w", err)
	}

	code := strings.TrimSpace(out.ConditionCode)
	if err := ValidateSyntax(code); err != nil {
		return Generated{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	slog.InfoContext(ctx, "condition generated",
		"model", g.client.Model(),
		"attempts", attempt,
		"code_len", len(code))

	return Generated{ConditionCode: code, PromptTemplate: rule.PromptTemplate}, nil
}
