package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vitals service metrics for production monitoring
var (
	// Generation metrics
	DatasetsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_datasets_generated_total",
			Help: "Total number of synthetic datasets generated",
		},
		[]string{"status"}, // status: ok/error
	)

	SamplesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_samples_generated_total",
			Help: "Total number of samples generated across all datasets",
		},
	)

	// Detection metrics
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubilitics_vitals_detection_duration_seconds",
			Help:    "Anomaly detection duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_detections_total",
			Help: "Total number of detection runs",
		},
		[]string{"status"}, // status: ok/insufficient/error
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_anomalies_flagged_total",
			Help: "Total number of samples flagged as anomalous",
		},
	)

	// Scoring metrics
	LatestHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_vitals_latest_health_score",
			Help: "Most recently computed overall health score",
		},
	)

	HealthScoresByTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_health_scores_total",
			Help: "Total number of health scores computed, by tier",
		},
		[]string{"tier"},
	)

	InsightsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_insights_total",
			Help: "Total number of insights emitted",
		},
		[]string{"category", "kind"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_vitals_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Session metrics
	DatasetsHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_vitals_datasets_held",
			Help: "Current number of datasets held in the session store",
		},
	)

	DatasetsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_datasets_evicted_total",
			Help: "Total number of datasets evicted from the session store",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_vitals_websocket_connections",
			Help: "Current number of active WebSocket stream connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	// Persistence metrics
	RunsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_vitals_runs_persisted_total",
			Help: "Total number of analysis runs written to the database",
		},
		[]string{"status"},
	)
)
