package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/trace"

	"worktrack.app/relay/common/logger"
)

var _ = Describe("LogFields", func() {
	It("merges newer values over older ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			OrgID:     logger.Ptr(int64(1)),
			Component: "relay.worker",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			RuleID:    logger.Ptr(int64(9)),
			Component: "relay.automation",
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.OrgID).To(Equal(int64(1)))
		Expect(*fields.RuleID).To(Equal(int64(9)))
		Expect(fields.Component).To(Equal("relay.automation"))
	})

	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})
})

var _ = Describe("TraceHandler", func() {
	var buf *bytes.Buffer
	var log *slog.Logger

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = slog.New(logger.NewTraceHandler(slog.NewJSONHandler(buf, nil)))
	})

	record := func() map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		return out
	}

	It("adds context fields to every record", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			WorkItemID:  logger.Ptr(int64(42)),
			EventID:     logger.Ptr("evt-1"),
			DeliveryTag: logger.Ptr(uint64(3)),
			Queue:       logger.Ptr("rag.index.queue"),
			Component:   "relay.indexer",
		})

		log.InfoContext(ctx, "synced")

		out := record()
		Expect(out["work_item_id"]).To(BeEquivalentTo(42))
		Expect(out["event_id"]).To(Equal("evt-1"))
		Expect(out["delivery_tag"]).To(BeEquivalentTo(3))
		Expect(out["queue"]).To(Equal("rag.index.queue"))
		Expect(out["component"]).To(Equal("relay.indexer"))
		Expect(out).NotTo(HaveKey("rule_id"))
	})

	It("adds trace ids when a span is active", func() {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1},
			SpanID:     trace.SpanID{2},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		log.InfoContext(ctx, "traced")

		out := record()
		Expect(out["trace_id"]).To(Equal(sc.TraceID().String()))
		Expect(out["span_id"]).To(Equal(sc.SpanID().String()))
	})
})

var _ = Describe("Truncate", func() {
	It("keeps short strings", func() {
		Expect(logger.Truncate("abc", 5)).To(Equal("abc"))
	})

	It("cuts long strings", func() {
		Expect(logger.Truncate("abcdefgh", 3)).To(Equal("abc..."))
	})
})
