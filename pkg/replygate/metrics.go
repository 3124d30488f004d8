package replygate

import "time"

// Metrics defines the interface for tracking engine decisions and storage performance.
type Metrics interface {
	// RecordVerdict records an eligibility decision. Reason is empty when allowed.
	RecordVerdict(plan, reason string, allowed bool)

	// RecordDispatch records a completed dispatch call and its total duration.
	RecordDispatch(plan string, success bool, duration time.Duration)

	// RecordDelay records the response delay applied before a reply.
	RecordDelay(delay time.Duration)

	// RecordStoreOperation records the duration and status of a store operation.
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)

	// RecordRateLimitCheck records a rate gate check.
	RecordRateLimitCheck(allowed bool, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordVerdict(plan, reason string, allowed bool)                          {}
func (n *NoopMetrics) RecordDispatch(plan string, success bool, duration time.Duration)         {}
func (n *NoopMetrics) RecordDelay(delay time.Duration)                                          {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                             {}
func (n *NoopMetrics) RecordRateLimitCheck(allowed bool, duration time.Duration)                {}
