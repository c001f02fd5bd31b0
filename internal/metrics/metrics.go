package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for EventsDropped.
const (
	DropInvalid       = "invalid"
	DropPublishFailed = "publish_failed"
	DropUnavailable   = "broker_unavailable"
)

// Outcomes for MessagesProcessed.
const (
	OutcomeAcked   = "acked"
	OutcomeNacked  = "nacked"
	OutcomeSkipped = "skipped"
)

var (
	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_emitted_total",
			Help: "Domain events handed to the publisher, by category.",
		},
		[]string{"category"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Domain events that never reached the broker, by reason.",
		},
		[]string{"reason"},
	)
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_processed_total",
			Help: "Queue messages handled by consumers, by queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)
	docStoreRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_docstore_requests_total",
			Help: "Calls to the external document store, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	rulesFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_automation_rules_fired_total",
			Help: "Automation rules whose condition matched and were executed.",
		},
	)
	brokerReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broker_reconnects_total",
			Help: "Successful broker reconnections after a connection loss.",
		},
	)
)

var registerOnce sync.Once

// Register adds the relay collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(eventsEmitted, eventsDropped, messagesProcessed, docStoreRequests, rulesFired, brokerReconnects)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncEventEmitted(category string) {
	eventsEmitted.WithLabelValues(category).Inc()
}

func IncEventDropped(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

func IncMessageProcessed(queue, outcome string) {
	messagesProcessed.WithLabelValues(queue, outcome).Inc()
}

func IncDocStoreRequest(op, outcome string) {
	docStoreRequests.WithLabelValues(op, outcome).Inc()
}

func IncRuleFired() {
	rulesFired.Inc()
}

func IncBrokerReconnect() {
	brokerReconnects.Inc()
}

// EventsDropped and the accessors below expose counters for prometheus/testutil assertions.
func EventsDropped() *prometheus.CounterVec     { return eventsDropped }
func EventsEmitted() *prometheus.CounterVec     { return eventsEmitted }
func MessagesProcessed() *prometheus.CounterVec { return messagesProcessed }
func RulesFired() prometheus.Counter            { return rulesFired }
