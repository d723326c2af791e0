// Package metrics exposes Prometheus collectors for the detection pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "eyeguard_"

// Frame results.
const (
	FrameObserved = "observed"
	FrameNoFace   = "no_face"
	FrameNoEyes   = "no_eyes"
	FrameError    = "error"
)

var (
	registerOnce sync.Once

	framesTotal          *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	alarmTransitions     *prometheus.CounterVec
	sinkErrors           *prometheus.CounterVec
	hookRuns             *prometheus.CounterVec
	detectLatency        prometheus.Histogram
	alarmState           prometheus.Gauge
	tracking             prometheus.Gauge
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "frames_total",
				Help: "Processed frames by result",
			},
			[]string{"result"},
		)
		classificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "classifications_total",
				Help: "Eye state classifications by path and outcome",
			},
			[]string{"path", "state"},
		)
		alarmTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Alarm controller transitions",
			},
			[]string{"from", "to"},
		)
		sinkErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_sink_errors_total",
				Help: "Alarm sink failures by operation",
			},
			[]string{"op"},
		)
		hookRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hook_runs_total",
				Help: "Alarm hook executions by result",
			},
			[]string{"result"},
		)
		detectLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "detect_latency_seconds",
				Help:    "Face detection latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		)
		alarmState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alarm_state",
				Help: "Current alarm state (0 idle, 1 pending, 2 sounding)",
			},
		)
		tracking = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tracking",
				Help: "1 while a tracking session is active",
			},
		)

		prometheus.MustRegister(
			framesTotal,
			classificationsTotal,
			alarmTransitions,
			sinkErrors,
			hookRuns,
			detectLatency,
			alarmState,
			tracking,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncFrame counts a processed frame.
func IncFrame(result string) {
	if framesTotal != nil {
		framesTotal.WithLabelValues(result).Inc()
	}
}

// IncClassification counts a classification.
func IncClassification(path string, open bool) {
	state := "closed"
	if open {
		state = "open"
	}
	if classificationsTotal != nil {
		classificationsTotal.WithLabelValues(path, state).Inc()
	}
}

// ObserveTransition counts an alarm transition and updates the state gauge.
// State values follow alarm.State ordering.
func ObserveTransition(from, to string, state int) {
	if alarmTransitions != nil {
		alarmTransitions.WithLabelValues(from, to).Inc()
	}
	if alarmState != nil {
		alarmState.Set(float64(state))
	}
}

// IncSinkError counts a failed sink Start or Stop.
func IncSinkError(op string) {
	if sinkErrors != nil {
		sinkErrors.WithLabelValues(op).Inc()
	}
}

// IncHookRun counts an alarm hook execution.
func IncHookRun(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	if hookRuns != nil {
		hookRuns.WithLabelValues(result).Inc()
	}
}

// ObserveDetect records face detection latency.
func ObserveDetect(d time.Duration) {
	if detectLatency != nil {
		detectLatency.Observe(d.Seconds())
	}
}

// SetTracking updates the tracking gauge.
func SetTracking(on bool) {
	if tracking == nil {
		return
	}
	if on {
		tracking.Set(1)
	} else {
		tracking.Set(0)
	}
}
