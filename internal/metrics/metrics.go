// Package metrics exposes prometheus counters for the protection engine and
// the snapshot pipeline. All methods are nil-receiver safe so callers can
// run without metrics wired.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the guardian's counters, registered on one Registerer.
type Set struct {
	eventsObserved *prometheus.CounterVec
	eventsIgnored  *prometheus.CounterVec
	eventsEnforced *prometheus.CounterVec
	punishments    *prometheus.CounterVec
	captures       *prometheus.CounterVec
	restores       *prometheus.CounterVec
}

// New creates and registers the counter set.
func New(registry prometheus.Registerer) *Set {
	factory := promauto.With(registry)
	return &Set{
		eventsObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_events_observed_total",
			Help: "Guarded events observed, by category.",
		}, []string{"category"}),
		eventsIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_events_ignored_total",
			Help: "Guarded events ignored, by category and reason.",
		}, []string{"category", "reason"}),
		eventsEnforced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_events_enforced_total",
			Help: "Guarded events that reached enforcement, by category.",
		}, []string{"category"}),
		punishments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_punishments_total",
			Help: "Punishments issued, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_snapshot_captures_total",
			Help: "Snapshot capture runs, by outcome.",
		}, []string{"outcome"}),
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardd_restores_total",
			Help: "Restore runs, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

func (s *Set) EventObserved(category string) {
	if s == nil {
		return
	}
	s.eventsObserved.WithLabelValues(category).Inc()
}

func (s *Set) EventIgnored(category, reason string) {
	if s == nil {
		return
	}
	s.eventsIgnored.WithLabelValues(category, reason).Inc()
}

func (s *Set) EventEnforced(category string) {
	if s == nil {
		return
	}
	s.eventsEnforced.WithLabelValues(category).Inc()
}

func (s *Set) Punishment(kind, outcome string) {
	if s == nil {
		return
	}
	s.punishments.WithLabelValues(kind, outcome).Inc()
}

func (s *Set) Capture(outcome string) {
	if s == nil {
		return
	}
	s.captures.WithLabelValues(outcome).Inc()
}

func (s *Set) Restore(kind, outcome string) {
	if s == nil {
		return
	}
	s.restores.WithLabelValues(kind, outcome).Inc()
}

// Handler returns an HTTP handler serving the registry in the prometheus
// exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
