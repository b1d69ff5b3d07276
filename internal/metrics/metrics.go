package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event results for IncEvent.
const (
	EventAccepted  = "accepted"
	EventIgnored   = "ignored"
	EventDebounced = "debounced"
)

// Attach directions for IncDatagram.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of completed restart sequences.",
		},
	)
	restartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "processmon",
			Subsystem: "supervisor",
			Name:      "restart_duration_seconds",
			Help:      "Wall time of kill, triggers and respawn for one restart.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "supervisor",
			Name:      "events_total",
			Help:      "Change events seen by the supervisor by outcome.",
		}, []string{"result"},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "processmon",
			Subsystem: "supervisor",
			Name:      "running_processes",
			Help:      "Processes currently held by the supervisor.",
		},
	)
	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Number of successful process spawns.",
		}, []string{"name"},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Number of processes killed by the supervisor.",
		}, []string{"name"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of process exits observed, killed or not.",
		}, []string{"name"},
	)
	triggerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "trigger",
			Name:      "runs_total",
			Help:      "Trigger executions by result.",
		}, []string{"name", "result"},
	)
	triggerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "processmon",
			Subsystem: "trigger",
			Name:      "duration_seconds",
			Help:      "Trigger run time from spawn to exit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	datagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processmon",
			Subsystem: "attach",
			Name:      "datagrams_total",
			Help:      "Datagrams relayed by attach channels.",
		}, []string{"name", "direction"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{restarts, restartDuration, events, runningProcesses, spawns, kills, exits, triggerRuns, triggerDuration, datagrams}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveRestart(seconds float64) {
	if regOK.Load() {
		restarts.Inc()
		restartDuration.Observe(seconds)
	}
}

func IncEvent(result string) {
	if regOK.Load() {
		events.WithLabelValues(result).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}

func IncSpawn(name string) {
	if regOK.Load() {
		spawns.WithLabelValues(name).Inc()
	}
}

func IncKill(name string) {
	if regOK.Load() {
		kills.WithLabelValues(name).Inc()
	}
}

func IncExit(name string) {
	if regOK.Load() {
		exits.WithLabelValues(name).Inc()
	}
}

func ObserveTrigger(name, result string, seconds float64) {
	if regOK.Load() {
		triggerRuns.WithLabelValues(name, result).Inc()
		triggerDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncDatagram(name, direction string) {
	if regOK.Load() {
		datagrams.WithLabelValues(name, direction).Inc()
	}
}
