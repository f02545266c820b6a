package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	connects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "conn",
			Name:      "connects_total",
			Help:      "Number of successful websocket connects.",
		},
	)
	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "conn",
			Name:      "reconnect_attempts_total",
			Help:      "Number of scheduled reconnection attempts.",
		},
	)
	disconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "conn",
			Name:      "disconnects_total",
			Help:      "Number of unexpected connection closes.",
		},
	)
	connState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gmonitor",
			Subsystem: "conn",
			Name:      "state",
			Help:      "Current connection state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "router",
			Name:      "frames_total",
			Help:      "Inbound frames by event discriminant.",
		}, []string{"event"},
	)
	frameParseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "router",
			Name:      "frame_parse_failures_total",
			Help:      "Inbound frames dropped as malformed.",
		},
	)
	framesUnknown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "router",
			Name:      "frames_unknown_total",
			Help:      "Well-formed frames ignored for an unrecognized event.",
		},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Outbound commands sent by command name.",
		}, []string{"command"},
	)
	commandsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gmonitor",
			Subsystem: "command",
			Name:      "dropped_total",
			Help:      "Commands dropped because no connection was open.",
		},
	)
	fleetClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gmonitor",
			Subsystem: "fleet",
			Name:      "clients",
			Help:      "Number of clients currently mirrored.",
		},
	)
	fleetRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gmonitor",
			Subsystem: "fleet",
			Name:      "running",
			Help:      "Number of clients with a running process.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		connects, reconnectAttempts, disconnects, connState,
		framesTotal, frameParseFailures, framesUnknown, commandsSent, commandsDropped,
		fleetClients, fleetRunning,
	}
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

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller is responsible for wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

func IncConnect()          { connects.Inc() }
func IncReconnectAttempt() { reconnectAttempts.Inc() }
func IncDisconnect()       { disconnects.Inc() }

// SetConnState marks state as the single active connection state.
func SetConnState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1.0
		}
		connState.WithLabelValues(s).Set(v)
	}
}

func IncFrame(event string)     { framesTotal.WithLabelValues(event).Inc() }
func IncParseFailure()          { frameParseFailures.Inc() }
func IncUnknownEvent()          { framesUnknown.Inc() }
func IncCommandSent(cmd string) { commandsSent.WithLabelValues(cmd).Inc() }
func IncCommandDropped()        { commandsDropped.Inc() }

// SetFleet updates the fleet gauges after a snapshot or delta.
func SetFleet(total, running int) {
	fleetClients.Set(float64(total))
	fleetRunning.Set(float64(running))
}
