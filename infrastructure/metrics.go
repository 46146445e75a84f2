package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are package-level: both binaries register the same
// collectors against the default registry and expose them on /metrics.
var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_uploads_total",
		Help: "Uploads by outcome (accepted, rejected).",
	}, []string{"outcome"})

	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processing_tasks_total",
		Help: "Finished task attempts by outcome (succeeded, failed, exhausted, duplicate).",
	}, []string{"outcome"})

	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processed_frames_total",
		Help: "Frames persisted with their detections.",
	})

	DetectionsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detected_objects_total",
		Help: "Detections that survived the confidence threshold.",
	})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "processing_task_duration_seconds",
		Help:    "Wall time of one task attempt.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	RequeuedVideos = promauto.NewCounter(prometheus.CounterOpts{
		Name: "requeued_videos_total",
		Help: "Stale QUEUED videos re-enqueued by the reconciliation sweep.",
	})
)
