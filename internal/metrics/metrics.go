// Package metrics holds the Prometheus collectors of a harness run. All
// methods are safe on a nil *Collector, which records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes.
const (
	OutcomeFulfilled  = "fulfilled"
	OutcomeUnmatched  = "unmatched"
	OutcomePassed     = "passthrough"
	OutcomeFailed     = "handler_error"
	OutcomeOutOfScope = "out_of_scope"
)

// Collector groups the run's collectors on a private registry.
type Collector struct {
	Registry *prometheus.Registry

	dispatch  *prometheus.CounterVec
	scenarios *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	actions   *prometheus.HistogramVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizza_e2e",
			Name:      "route_dispatch_total",
			Help:      "Intercepted requests by outcome.",
		}, []string{"outcome", "method"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizza_e2e",
			Name:      "scenarios_total",
			Help:      "Finished scenarios by terminal state and failure kind.",
		}, []string{"state", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pizza_e2e",
			Name:      "scenario_duration_seconds",
			Help:      "Scenario wall time.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"state"}),
		actions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pizza_e2e",
			Name:      "action_duration_seconds",
			Help:      "Action wall time by action type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	c.Registry.MustRegister(c.dispatch, c.scenarios, c.duration, c.actions)
	return c
}

// ObserveDispatch counts one intercepted request.
func (c *Collector) ObserveDispatch(outcome, method string) {
	if c == nil {
		return
	}
	c.dispatch.WithLabelValues(outcome, method).Inc()
}

// ObserveScenario records a finished scenario. kind is empty for passes.
func (c *Collector) ObserveScenario(state, kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.scenarios.WithLabelValues(state, kind).Inc()
	c.duration.WithLabelValues(state).Observe(d.Seconds())
}

// ObserveAction records the duration of one action.
func (c *Collector) ObserveAction(actionType string, d time.Duration) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(actionType).Observe(d.Seconds())
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
