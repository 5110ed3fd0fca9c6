package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "buttonrec"

// Package-level collectors, registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "state_transitions_total",
			Help:      "Controller state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "current_state",
			Help:      "Current controller state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	sessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Recording sessions by outcome.",
		}, []string{"result"},
	)
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Recorded duration of finished sessions.",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200, 10800},
		},
	)
	captureBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "bytes_total",
			Help:      "PCM bytes read from the capture tool.",
		},
	)
	queueHighWater = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "high_water_bytes",
			Help:      "Largest transfer queue size seen in the last finished session.",
		},
	)
	gpioEdges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpio",
			Name:      "edges_total",
			Help:      "Edges reported by the button line.",
		},
	)
	gpioOverflows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpio",
			Name:      "overflows_total",
			Help:      "Edge buffer overflows that required reopening the pin.",
		},
	)
	buttonPresses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpio",
			Name:      "button_presses_total",
			Help:      "Debounced button presses forwarded to the controller.",
		},
	)
	audioDeviceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "device_events_total",
			Help:      "Sound card hotplug events.",
		}, []string{"action"},
	)
)

// Register registers all collectors with r. Calling it again after a
// successful registration is a no-op.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		stateTransitions, currentState, sessionsFinished, sessionDuration,
		captureBytes, queueHighWater, gpioEdges, gpioOverflows, buttonPresses, audioDeviceEvents,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has been called.

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, all []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		currentState.WithLabelValues(s).Set(value)
	}
}

func ObserveSession(failed bool, seconds float64, highWater int64) {
	if !regOK.Load() {
		return
	}
	result := "saved"
	if failed {
		result = "failed"
	}
	sessionsFinished.WithLabelValues(result).Inc()
	sessionDuration.Observe(seconds)
	queueHighWater.Set(float64(highWater))
}

func AddCaptureBytes(n int) {
	if regOK.Load() {
		captureBytes.Add(float64(n))
	}
}

func IncEdge() {
	if regOK.Load() {
		gpioEdges.Inc()
	}
}

func IncOverflow() {
	if regOK.Load() {
		gpioOverflows.Inc()
	}
}

func IncButtonPress() {
	if regOK.Load() {
		buttonPresses.Inc()
	}
}

func IncAudioDeviceEvent(action string) {
	if regOK.Load() {
		audioDeviceEvents.WithLabelValues(action).Inc()
	}
}
