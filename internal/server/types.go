package server

import (
	"time"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/insight"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/report"
	"github.com/kubilitics/kubilitics-vitals/internal/db"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// GenerateRequest creates a dataset. Omitted fields take the configured defaults.
type GenerateRequest struct {
	Days            *int     `json:"days,omitempty"`
	SamplesPerDay   *int     `json:"samples_per_day,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	OutlierFraction *float64 `json:"outlier_fraction,omitempty"`
}

// DatasetSummary describes a held dataset without its samples.
type DatasetSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Days          int       `json:"days"`
	SamplesPerDay int       `json:"samples_per_day"`
	Seed          int64     `json:"seed"`
	Samples       int       `json:"samples"`
	Outliers      int       `json:"outliers"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Detected      bool      `json:"detected"`
}

// DatasetResponse is a dataset with its samples.
type DatasetResponse struct {
	DatasetSummary
	Rows []models.Sample `json:"rows"`
}

// DetectResponse is the outcome of running detection on a held dataset.
type DetectResponse struct {
	ID        string        `json:"id"`
	Detection *ml.Detection `json:"detection"`
}

// InsightsResponse carries insights with their plain messages.
type InsightsResponse struct {
	ID       string            `json:"id"`
	Insights []insight.Insight `json:"insights"`
	Messages []string          `json:"messages"`
}

// AnomaliesResponse lists flagged samples of a held dataset.
type AnomaliesResponse struct {
	ID        string                `json:"id"`
	Detected  bool                  `json:"detected"`
	Anomalies []report.AnomalyEntry `json:"anomalies"`
}

// ReportResponse wraps a report with the persisted run ID, if any.
type ReportResponse struct {
	ID     string         `json:"id"`
	RunID  string         `json:"run_id,omitempty"`
	Report *report.Report `json:"report"`
}

// RunsResponse lists persisted runs.
type RunsResponse struct {
	Runs []*db.RunRecord `json:"runs"`
}

// StreamMessage is one frame of the real-time stream.
type StreamMessage struct {
	Type      string         `json:"type"`
	Tick      int            `json:"tick"`
	Seed      int64          `json:"seed"`
	Report    *report.Report `json:"report,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stream message types
const (
	StreamTypeReport = "report"
	StreamTypeError  = "error"
)
