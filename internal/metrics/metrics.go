package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wakala/payments/internal/domain"
)

const namespace = "payments"

// Metrics holds the orchestrator's collectors. Its methods are nil-safe so
// components can run without metrics in tests.
type Metrics struct {
	Outcomes    *prometheus.CounterVec
	Replays     *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	RemoteCalls *prometheus.CounterVec
	CallLatency *prometheus.HistogramVec
	Polls       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Terminal orchestration outcomes by status and abort reason.",
		}, []string{"status", "reason"}),
		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Requests served from the idempotency store.",
		}, []string{"status"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Orchestrator state transitions by target state.",
		}, []string{"state"}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "calls_total",
			Help:      "Processor calls by operation and result.",
		}, []string{"op", "result"}),
		CallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "call_duration_ms",
			Help:      "Processor call latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"op"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "polls_total",
			Help:      "Settlement status polls by observed status.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.Outcomes, m.Replays, m.Transitions, m.RemoteCalls, m.CallLatency, m.Polls)
	return m
}

func (m *Metrics) ObserveOutcome(o *domain.Outcome, replayed bool) {
	if m == nil || o == nil {
		return
	}
	if replayed {
		m.Replays.WithLabelValues(string(o.Status)).Inc()
		return
	}
	m.Outcomes.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
}

func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RemoteCalls.WithLabelValues(op, result).Inc()
	m.CallLatency.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
}

// ObservePoll satisfies settlement.Observer.
func (m *Metrics) ObservePoll(status domain.PaymentStatus, err error) {
	if m == nil {
		return
	}
	label := string(status)
	if err != nil {
		label = "error"
	} else if label == "" {
		label = "unknown"
	}
	m.Polls.WithLabelValues(label).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
