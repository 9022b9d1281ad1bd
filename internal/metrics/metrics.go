// Package metrics holds the Prometheus collectors shared across strikelab.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikelab_analyses_total",
		Help: "Total number of analyses finished, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "strikelab_stage_duration_seconds",
		Help:    "Duration of analysis pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikelab_frames_sampled_total",
		Help: "Total number of frames sampled, by video side",
	}, []string{"side"})

	SeekTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strikelab_seek_timeouts_total",
		Help: "Seeks that fell back to a best-effort frame after the settle timeout",
	})

	FormScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strikelab_form_score",
		Help:    "Distribution of computed form scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strikelab_active_workers",
		Help: "Number of workers currently running an analysis",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strikelab_queue_depth",
		Help: "Analyses waiting for a worker",
	})

	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikelab_backend_requests_total",
		Help: "Requests proxied to the analysis backend, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	HandoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikelab_handoffs_total",
		Help: "Handoff store operations, by operation and outcome",
	}, []string{"op", "outcome"})
)
