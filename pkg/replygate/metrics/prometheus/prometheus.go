package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements replygate.Metrics using Prometheus.
type Metrics struct {
	verdictsTotal              *prometheus.CounterVec
	dispatchTotal              *prometheus.CounterVec
	dispatchDuration           *prometheus.HistogramVec
	responseDelay              prometheus.Histogram
	storeOpsDuration           *prometheus.HistogramVec
	storeOpsErrors             *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
	rateLimitCheckDuration     prometheus.Histogram
	rateLimitExceededTotal     prometheus.Counter
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		verdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of eligibility verdicts by plan and denial reason.",
		}, []string{"plan", "allowed", "reason"}),

		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of dispatch calls.",
		}, []string{"plan", "success"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end dispatch latency including the response delay.",
			Buckets:   []float64{.005, .05, .5, 1, 2.5, 5, 10, 30},
		}, []string{"plan"}),

		responseDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_delay_seconds",
			Help:      "Response delay applied before replies.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),

		storeOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storeOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of store operation errors.",
		}, []string{"operation"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),

		rateLimitCheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_check_duration_seconds",
			Help:      "Latency of rate gate checks.",
			Buckets:   prometheus.DefBuckets,
		}),

		rateLimitExceededTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_exceeded_total",
			Help:      "Total number of rate gate denials.",
		}),
	}
}

func (m *Metrics) RecordVerdict(plan, reason string, allowed bool) {
	m.verdictsTotal.WithLabelValues(plan, strconv.FormatBool(allowed), reason).Inc()
}

func (m *Metrics) RecordDispatch(plan string, success bool, duration time.Duration) {
	m.dispatchTotal.WithLabelValues(plan, strconv.FormatBool(success)).Inc()
	m.dispatchDuration.WithLabelValues(plan).Observe(duration.Seconds())
}

func (m *Metrics) RecordDelay(delay time.Duration) {
	m.responseDelay.Observe(delay.Seconds())
}

func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordRateLimitCheck(allowed bool, duration time.Duration) {
	m.rateLimitCheckDuration.Observe(duration.Seconds())
	if !allowed {
		m.rateLimitExceededTotal.Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
