package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a consumer sets work_item_id or rule_id once
// and every log line below it carries the value.
type LogFields struct {
	WorkItemID  *int64  // Work item being synchronized or evaluated
	OrgID       *int64  // Owning organization
	RuleID      *int64  // Automation rule under evaluation
	EventID     *string // Domain event id (snowflake, string-encoded)
	RoutingKey  *string // Broker routing key the message arrived on
	DeliveryTag *uint64 // AMQP delivery tag
	Queue       *string // Queue the consumer is reading from
	Component   string  // Component name (OTel semantic convention style, e.g., "relay.indexer.syncer")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.WorkItemID != nil {
		result.WorkItemID = new.WorkItemID
	}
	if new.OrgID != nil {
		result.OrgID = new.OrgID
	}
	if new.RuleID != nil {
		result.RuleID = new.RuleID
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.RoutingKey != nil {
		result.RoutingKey = new.RoutingKey
	}
	if new.DeliveryTag != nil {
		result.DeliveryTag = new.DeliveryTag
	}
	if new.Queue != nil {
		result.Queue = new.Queue
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{RuleID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
