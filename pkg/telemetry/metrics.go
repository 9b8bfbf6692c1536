// Package telemetry exposes automation lifecycle events as Prometheus metrics
// and OpenTelemetry spans. Both are automation.Observer implementations.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/autopilot/pkg/automation"
)

const namespace = "autopilot"

// Metrics records lifecycle events in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	targetsDiscovered *prometheus.GaugeVec
	entriesSkipped    *prometheus.CounterVec
	sessionsBound     *prometheus.CounterVec
	sessionsActive    *prometheus.GaugeVec
	sessionsReleased  *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	cleanupFailures   *prometheus.CounterVec
}

var _ automation.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		targetsDiscovered: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets_discovered",
			Help:      "Targets returned by the most recent discovery, by status",
		}, []string{"kind", "status"}),
		entriesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_entries_skipped_total",
			Help:      "Unparseable listing entries skipped during discovery",
		}, []string{"kind"}),
		sessionsBound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_bound_total",
			Help:      "Sessions bound to a target",
		}, []string{"kind"}),
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently bound",
		}, []string{"kind"}),
		sessionsReleased: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_released_total",
			Help:      "Sessions released, by outcome",
		}, []string{"kind", "outcome"}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions, by error kind (empty on success)",
		}, []string{"kind", "action", "error_kind"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Dispatch duration of actions",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind", "action"}),
		cleanupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Best-effort cleanup steps that failed",
		}, []string{"kind", "action", "step"}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DiscoveryCompleted(d automation.Discovery) {
	kind := string(d.Kind())
	counts := map[automation.Status]int{
		automation.StatusReady:        0,
		automation.StatusOffline:      0,
		automation.StatusUnauthorized: 0,
		automation.StatusUnknown:      0,
	}
	for _, t := range d.Targets() {
		counts[t.Status]++
	}
	for status, n := range counts {
		m.targetsDiscovered.WithLabelValues(kind, string(status)).Set(float64(n))
	}
	if d.Skipped() > 0 {
		m.entriesSkipped.WithLabelValues(kind).Add(float64(d.Skipped()))
	}
}

func (m *Metrics) SessionBound(s *automation.Session) {
	kind := kindOf(s)
	m.sessionsBound.WithLabelValues(kind).Inc()
	m.sessionsActive.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionReleased(s *automation.Session, err error) {
	kind := kindOf(s)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sessionsActive.WithLabelValues(kind).Dec()
	m.sessionsReleased.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ActionStarted(ctx context.Context, _ *automation.Session, _ automation.ActionRequest) context.Context {
	return ctx
}

func (m *Metrics) ActionFinished(_ context.Context, s *automation.Session, result automation.ActionResult) {
	kind := kindOf(s)
	m.actionsTotal.WithLabelValues(kind, result.Action, string(result.ErrorKind)).Inc()
	m.actionDuration.WithLabelValues(kind, result.Action).Observe(result.Duration.Seconds())
}

func (m *Metrics) CleanupFailed(_ context.Context, s *automation.Session, action, step string, _ error) {
	m.cleanupFailures.WithLabelValues(kindOf(s), action, step).Inc()
}

func kindOf(s *automation.Session) string {
	if s == nil {
		return "none"
	}
	return string(s.Target().Kind)
}
