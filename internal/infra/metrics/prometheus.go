package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privacylens_jobs_total",
		Help: "Jobs by terminal outcome of each pipeline phase",
	}, []string{"phase", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "privacylens_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privacylens_frames_sampled_total",
		Help: "Frames extracted by the sampler across all jobs",
	})

	DetectorFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privacylens_detector_failures_total",
		Help: "Single-frame detector failures absorbed without aborting a job",
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privacylens_detections_total",
		Help: "Catalog detections by type",
	}, []string{"type"})

	RedactionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privacylens_redaction_cache_hits_total",
		Help: "Protect requests answered from the request-hash cache",
	})

	InFlightJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privacylens_inflight_jobs",
		Help: "Jobs currently occupying a pipeline worker",
	})
)
