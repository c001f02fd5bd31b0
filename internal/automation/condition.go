package automation

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/model"
)

const (
	maxConditionNodes = 2000
	maxCachedPrograms = 512
)

var programs = &programCache{programs: map[string]*vm.Program{}}

// Evaluate runs condition code against data and reports whether it holds. Blank code
// always holds. Compile errors, runtime errors and panics all evaluate to false.
// The result is coerced the way JavaScript's Boolean() does.
func Evaluate(code string, data map[string]any) (ok bool) {
	if strings.TrimSpace(code) == "" {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	program, err := programs.get(code)
	if err != nil {
		return false
	}

	env := make(map[string]any, len(data)+1)
	for k, v := range data {
		env[k] = v
	}
	env["data"] = data

	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	return truthy(out)
}

// ValidateSyntax parses condition code without an environment. Blank code is valid.
func ValidateSyntax(code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	if _, err := parser.Parse(normalize(code)); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	return nil
}

// ConditionData lays out the values a condition can reference: the event fields (under
// both camelCase and snake_case names), the work item projection when one is loaded, the
// work item columns again at the root, and the raw event under "event".
func ConditionData(event domain.DomainEvent, projection *model.Projection) map[string]any {
	changes := make(map[string]any, len(event.FieldChanges))
	for name, c := range event.FieldChanges {
		changes[name] = map[string]any{
			"oldValue":  c.OldValue,
			"newValue":  c.NewValue,
			"fieldType": string(c.FieldType),
		}
	}

	changed := make([]any, len(event.ChangedFields))
	for i, f := range event.ChangedFields {
		changed[i] = f
	}

	var categoryID any
	if event.CategoryID != nil {
		categoryID = *event.CategoryID
	}

	workItemID := event.ParentWorkItemID
	if workItemID == "" && event.Entity == domain.EntityWorkItem {
		workItemID = event.EntityID
	}

	fields := map[string]any{
		"eventId":       event.EventID,
		"entity":        string(event.Entity),
		"action":        string(event.Action),
		"eventType":     event.EventTypeKey(),
		"changedFields": changed,
		"fieldChanges":  changes,
		"triggeredBy":   string(event.TriggeredBy),
		"entityId":      event.EntityID,
		"workItemId":    workItemID,
		"orgId":         event.OrgID,
		"categoryId":    categoryID,
	}

	data := make(map[string]any, 2*len(fields)+8)
	eventCopy := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
		eventCopy[k] = v
	}
	data["triggered_by"] = fields["triggeredBy"]
	data["entity_id"] = fields["entityId"]
	data["work_item_id"] = fields["workItemId"]
	data["org_id"] = fields["orgId"]
	data["category_id"] = fields["categoryId"]
	data["event"] = eventCopy

	if projection == nil {
		return data
	}

	snapshot := projection.ConditionData()
	for k, v := range snapshot {
		data[k] = v
	}
	if item, ok := snapshot["workItem"].(map[string]any); ok {
		for k, v := range item {
			if _, taken := data[k]; !taken {
				data[k] = v
			}
		}
	}
	return data
}

type programCache struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func (c *programCache) get(code string) (*vm.Program, error) {
	c.mu.Lock()
	program, ok := c.programs[code]
	c.mu.Unlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(normalize(code),
		expr.AllowUndefinedVariables(),
		expr.MaxNodes(maxConditionNodes),
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.programs) >= maxCachedPrograms {
		clear(c.programs)
	}
	c.programs[code] = program
	c.mu.Unlock()
	return program, nil
}

// normalize rewrites the JavaScript spellings rule authors commonly use (===, !==,
// null, undefined) into expr syntax. String literals are left untouched.
func normalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))

	var quote byte
	for i := 0; i < len(code); i++ {
		ch := code[i]

		if quote != 0 {
			b.WriteByte(ch)
			if ch == '\\' && i+1 < len(code) {
				i++
				b.WriteByte(code[i])
			} else if ch == quote {
				quote = 0
			}
			continue
		}

		switch {
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
			b.WriteByte(ch)
		case strings.HasPrefix(code[i:], "==="):
			b.WriteString("==")
			i += 2
		case strings.HasPrefix(code[i:], "!=="):
			b.WriteString("!=")
			i += 2
		case isIdentStart(ch) && (i == 0 || !isIdentPart(code[i-1]) && code[i-1] != '.'):
			j := i
			for j < len(code) && isIdentPart(code[j]) {
				j++
			}
			word := code[i:j]
			if word == "null" || word == "undefined" {
				word = "nil"
			}
			b.WriteString(word)
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int8:
		return t != 0
	case int16:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint8:
		return t != 0
	case uint16:
		return t != 0
	case uint32:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case float64:
		return t != 0 && !math.IsNaN(t)
	}
	return true
}
