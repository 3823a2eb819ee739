package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recording processor
type Metrics struct {
	// Ingestion metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	ChunksReceived  prometheus.Counter
	ChunkBytes      prometheus.Counter
	ChunksRejected  *prometheus.CounterVec

	// Pipeline metrics
	PipelineRuns         *prometheus.CounterVec
	PipelineInFlight     prometheus.Gauge
	StepDuration         *prometheus.HistogramVec
	ArtifactSize         prometheus.Histogram
	TranscriptionSkipped *prometheus.CounterVec
	NotifyFailures       *prometheus.CounterVec
	CleanupFailures      prometheus.Counter
	SweptFiles           prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_active_sessions",
			Help: "Current number of sessions held in the registry",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_sessions_created_total",
			Help: "Total number of recording sessions created",
		}),
		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_chunks_received_total",
			Help: "Total number of chunks appended to sessions",
		}),
		ChunkBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_chunk_bytes_total",
			Help: "Total number of chunk bytes appended to sessions",
		}),
		ChunksRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_chunks_rejected_total",
			Help: "Total number of chunks rejected",
		}, []string{"reason"}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_pipeline_runs_total",
			Help: "Total number of finished pipeline runs by terminal state and reason",
		}, []string{"state", "reason"}),
		PipelineInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_pipeline_in_flight",
			Help: "Current number of running pipelines",
		}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_pipeline_step_duration_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"step"}),
		ArtifactSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_artifact_size_bytes",
			Help:    "Size of assembled recordings",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to ~128MB
		}),
		TranscriptionSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_transcription_skipped_total",
			Help: "Total number of recordings not transcribed, by reason",
		}, []string{"reason"}),
		NotifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_notify_failures_total",
			Help: "Total number of failed system of record calls",
		}, []string{"call"}),
		CleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_cleanup_failures_total",
			Help: "Total number of artifacts that could not be deleted",
		}),
		SweptFiles: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_swept_files_total",
			Help: "Total number of stale scratch files deleted by the sweeper",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordChunk records an appended chunk
func (m *Metrics) RecordChunk(sizeBytes int, sessionCreated bool) {
	m.ChunksReceived.Inc()
	m.ChunkBytes.Add(float64(sizeBytes))
	if sessionCreated {
		m.SessionsCreated.Inc()
	}
}

// RecordChunkRejected records a refused chunk
func (m *Metrics) RecordChunkRejected(reason string) {
	m.ChunksRejected.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordStep observes the duration of a pipeline step
func (m *Metrics) RecordStep(step string, durationSeconds float64) {
	m.StepDuration.WithLabelValues(step).Observe(durationSeconds)
}

// RecordPipelineResult counts a finished run
func (m *Metrics) RecordPipelineResult(state, reason string) {
	m.PipelineRuns.WithLabelValues(state, reason).Inc()
}

// RecordTranscriptionSkipped counts a recording that was not transcribed
func (m *Metrics) RecordTranscriptionSkipped(reason string) {
	m.TranscriptionSkipped.WithLabelValues(reason).Inc()
}

// RecordNotifyFailure counts a failed system of record call
func (m *Metrics) RecordNotifyFailure(call string) {
	m.NotifyFailures.WithLabelValues(call).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
