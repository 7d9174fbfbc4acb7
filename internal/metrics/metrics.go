package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
type Metrics struct {
	// Audio capture metrics
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter

	// Streaming session metrics
	SessionsStarted  prometheus.Counter
	SessionRotations prometheus.Counter
	SessionFailures  prometheus.Counter
	SessionRetries   prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Transcript metrics
	FinalResults   prometheus.Counter
	InterimResults prometheus.Counter

	// Conversation metrics
	ActiveConversations prometheus.Gauge

	// Report generation metrics
	ReportRequests  prometheus.Counter
	ReportFailures  prometheus.Counter
	ReportRetries   prometheus.Counter
	ReportDuration  prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_frames_captured_total",
			Help: "Total number of audio frames captured from the device",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_frames_dropped_total",
			Help: "Total number of audio frames dropped by the bounded buffer",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_streaming_sessions_started_total",
			Help: "Total number of recognizer streaming sessions opened",
		}),
		SessionRotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_streaming_session_rotations_total",
			Help: "Total number of duration-limit session rotations",
		}),
		SessionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_streaming_session_failures_total",
			Help: "Total number of streaming sessions that ended in error",
		}),
		SessionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_streaming_session_retries_total",
			Help: "Total number of session retry attempts after failures",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medscribe_streaming_session_duration_seconds",
			Help:    "Audio duration forwarded per streaming session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		FinalResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_final_results_total",
			Help: "Total number of finalized transcription results",
		}),
		InterimResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_interim_results_total",
			Help: "Total number of interim transcription results",
		}),
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "medscribe_active_conversations",
			Help: "Number of conversations currently recording",
		}),
		ReportRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_report_requests_total",
			Help: "Total number of report generation requests",
		}),
		ReportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_report_failures_total",
			Help: "Total number of report generations that failed after retries",
		}),
		ReportRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_report_retries_total",
			Help: "Total number of report generation retry attempts",
		}),
		ReportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medscribe_report_duration_seconds",
			Help:    "Wall-clock time to generate a report",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}
