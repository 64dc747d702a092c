package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store persists analysis runs. Trained models are never stored; a run holds
// the outcome of one analysis over one dataset.
type Store interface {
	RunStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// RunStore persists analysis runs with their flagged samples and insights.
type RunStore interface {
	// SaveRun writes a run, its anomalies and insights in one transaction.
	// An empty ID is replaced with a new UUID.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns a run with its insights. Anomalies are loaded separately.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs first, without children.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// RunAnomalies returns the flagged samples of a run in sample order.
	RunAnomalies(ctx context.Context, runID string) ([]*AnomalyRecord, error)
}

// RunRecord is a persisted analysis run.
type RunRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Days          int       `json:"days"`
	SamplesPerDay int       `json:"samples_per_day"`
	Seed          int64     `json:"seed"`
	Samples       int       `json:"samples"`
	Contamination float64   `json:"contamination"`
	Threshold     float64   `json:"threshold"`
	Flagged       int       `json:"flagged"`
	Insufficient  bool      `json:"insufficient"`
	OverallScore  float64   `json:"overall_score"`
	Tier          string    `json:"tier"`
	// Report is the JSON-encoded full report.
	Report json.RawMessage `json:"report,omitempty"`

	Anomalies []*AnomalyRecord `json:"anomalies,omitempty"`
	Insights  []*InsightRecord `json:"insights,omitempty"`
}

// AnomalyRecord is one flagged sample of a run.
type AnomalyRecord struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	SampleIndex int       `json:"sample_index"`
	Timestamp   time.Time `json:"timestamp"`
	HeartRate   int       `json:"heart_rate"`
	BloodOxygen float64   `json:"blood_oxygen"`
	Score       float64   `json:"score"`
}

// InsightRecord is one insight of a run.
type InsightRecord struct {
	ID       int64  `json:"id" db:"id"`
	RunID    string `json:"run_id" db:"run_id"`
	Position int    `json:"position" db:"position"`
	Category string `json:"category" db:"category"`
	Kind     string `json:"kind" db:"kind"`
	Message  string `json:"message" db:"message"`
}
