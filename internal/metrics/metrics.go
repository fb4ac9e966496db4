// Package metrics exposes Prometheus instrumentation for image generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation Metrics
var (
	// GenerationsTotal tracks generated images by algorithm and status
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cue_generations_total",
			Help: "Total image generations by algorithm and status",
		},
		[]string{"algorithm", "status"},
	)

	// GenerationDuration tracks end-to-end generation latency per image
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cue_generation_duration_seconds",
			Help:    "Image generation duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"algorithm"},
	)

	// StageDuration tracks time spent per pipeline stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cue_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"stage"},
	)

	// InstabilityTotal counts reaction-diffusion runs aborted on non-finite values
	InstabilityTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cue_numerical_instability_total",
			Help: "Total simulations aborted on non-finite values",
		},
	)
)

// HTTP Metrics
var (
	// HTTPRequestsTotal tracks API requests by route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cue_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	// HTTPInFlight tracks generation requests currently holding a slot
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cue_http_generations_in_flight",
			Help: "Generation requests currently being served",
		},
	)

	// HTTPRejectedTotal counts requests turned away because all slots were busy
	HTTPRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cue_http_rejected_total",
			Help: "Total generation requests rejected while at capacity",
		},
	)
)

// Gallery Metrics
var (
	// GallerySavesTotal tracks gallery writes by status
	GallerySavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cue_gallery_saves_total",
			Help: "Total gallery entries written by status",
		},
		[]string{"status"},
	)
)
