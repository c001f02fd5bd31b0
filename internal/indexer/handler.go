package indexer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/queue"
)

// Handler consumes the index queue.
type Handler struct {
	syncer *Syncer
}

func NewHandler(syncer *Syncer) *Handler {
	return &Handler{syncer: syncer}
}

func (h *Handler) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.indexer"})

	indexMsg, err := queue.DecodeIndexSync(msg.Body)
	if err != nil {
		return err
	}

	sc := logger.StartSpan(ctx, "indexer.sync",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("index.entity_type", string(indexMsg.EntityType)),
			attribute.String("index.action", string(indexMsg.Action)),
			attribute.Int64("index.entity_id", int64(indexMsg.EntityID)),
		))
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing index message",
		"entity_type", indexMsg.EntityType,
		"action", indexMsg.Action,
		"entity_id", int64(indexMsg.EntityID),
		"org_id", int64(indexMsg.OrgID))

	if err := h.syncer.Sync(ctx, indexMsg); err != nil {
		sc.RecordError(err)
		return err
	}
	return nil
}
