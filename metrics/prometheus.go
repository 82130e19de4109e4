package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hatsunemiku3939/retrydlq/policy"
)

// Prometheus records engine decisions as Prometheus counters.
// It satisfies retrydlq.Metrics.
type Prometheus struct {
	// Outcomes counts completed decisions per event, outcome and rule
	Outcomes *prometheus.CounterVec
	// PublishErrors counts dispatcher failures per event and intended outcome
	PublishErrors *prometheus.CounterVec
	// ConfigurationMissing counts failures that had no policy or event entry
	ConfigurationMissing *prometheus.CounterVec
}

// NewPrometheus registers the counters with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrydlq_outcomes_total",
				Help: "Total number of handler failures by outcome",
			},
			[]string{"event", "outcome", "rule"},
		),
		PublishErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrydlq_publish_errors_total",
				Help: "Total number of failed retry or dead-letter publishes",
			},
			[]string{"event", "outcome"},
		),
		ConfigurationMissing: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrydlq_configuration_missing_total",
				Help: "Total number of failures without a policy or event configuration",
			},
			[]string{"event"},
		),
	}
}

// ObserveOutcome implements retrydlq.Metrics.
func (p *Prometheus) ObserveOutcome(eventName string, outcome policy.Outcome, rule policy.Rule) {
	p.Outcomes.WithLabelValues(eventName, outcome.String(), rule.String()).Inc()
}

// ObservePublishError implements retrydlq.Metrics.
func (p *Prometheus) ObservePublishError(eventName string, outcome policy.Outcome) {
	p.PublishErrors.WithLabelValues(eventName, outcome.String()).Inc()
}

// ObserveConfigurationMissing implements retrydlq.Metrics.
func (p *Prometheus) ObserveConfigurationMissing(eventName string) {
	p.ConfigurationMissing.WithLabelValues(eventName).Inc()
}
