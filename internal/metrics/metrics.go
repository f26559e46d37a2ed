// Package metrics exposes Prometheus instrumentation for the agent runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pixie_frame_seconds",
			Help:    "Time spent pumping one UI frame",
			Buckets: []float64{.001, .002, .005, .01, .02, .033, .05, .1, .25},
		},
	)

	SlowFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixie_slow_frames_total",
			Help: "UI frames that exceeded the slow-frame threshold",
		},
	)

	PumpErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixie_ui_pump_errors_total",
			Help: "Non-fatal errors returned while pumping the UI",
		},
	)

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixie_ai_requests_total",
			Help: "AI collaborator calls by operation and result",
		},
		[]string{"op", "result"},
	)

	AILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixie_ai_latency_seconds",
			Help:    "AI collaborator call latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"op"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixie_ratelimit_denied_total",
			Help: "AI calls denied by the rate limiter",
		},
	)

	Comments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixie_comments_total",
			Help: "Unprompted comments by trigger",
		},
		[]string{"trigger"},
	)

	Recognitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixie_recognitions_total",
			Help: "Speech recognition outcomes per captured segment",
		},
		[]string{"result"},
	)

	Utterances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixie_utterances_total",
			Help: "Utterances handed to speech output",
		},
	)

	LedgerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixie_ledger_entries",
			Help: "Entries currently held in the conversation ledger",
		},
	)

	IdleCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixie_idle_count",
			Help: "Consecutive idle activity classifications",
		},
	)

	ActivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixie_activity_transitions_total",
			Help: "Activity category changes by new category",
		},
		[]string{"category"},
	)

	CurrentMood = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pixie_mood",
			Help: "1 for the current mood, 0 otherwise",
		},
		[]string{"mood"},
	)
)

// SetMood marks mood as current among all.
func SetMood(current string, all []string) {
	for _, m := range all {
		v := 0.0
		if m == current {
			v = 1
		}
		CurrentMood.WithLabelValues(m).Set(v)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
