package retrydlq

import "github.com/hatsunemiku3939/retrydlq/policy"

// Metrics records dispatch decisions.
type Metrics interface {
	// ObserveOutcome is called once per completed dispatch.
	ObserveOutcome(eventName string, outcome policy.Outcome, rule policy.Rule)
	// ObservePublishError is called when the Dispatcher fails.
	ObservePublishError(eventName string, outcome policy.Outcome)
	// ObserveConfigurationMissing is called when a policy or event entry is absent.
	// eventName is empty when the handler itself has no policy.
	ObserveConfigurationMissing(eventName string)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveOutcome implements Metrics.
func (NopMetrics) ObserveOutcome(string, policy.Outcome, policy.Rule) {}

// ObservePublishError implements Metrics.
func (NopMetrics) ObservePublishError(string, policy.Outcome) {}

// ObserveConfigurationMissing implements Metrics.
func (NopMetrics) ObserveConfigurationMissing(string) {}
