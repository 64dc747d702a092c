package db

import (
	"encoding/json"
	"fmt"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/report"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// NewRunRecord captures an analysis for persistence. Every flagged sample of
// ds is recorded, not only the recent ones shown in the report.
func NewRunRecord(ds *models.Dataset, det *ml.Detection, rep *report.Report) (*RunRecord, error) {
	if ds == nil || rep == nil {
		return nil, fmt.Errorf("dataset and report are required")
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	rec := &RunRecord{
		CreatedAt:     rep.GeneratedAt,
		Days:          ds.Days,
		SamplesPerDay: ds.SamplesPerDay,
		Seed:          ds.Seed,
		Samples:       ds.Len(),
		Contamination: rep.Detection.Contamination,
		Threshold:     rep.Detection.Threshold,
		Flagged:       rep.Detection.Flagged,
		Insufficient:  rep.Detection.Insufficient,
		Report:        body,
	}
	if rep.Score != nil {
		rec.OverallScore = rep.Score.Overall
		rec.Tier = string(rep.Score.Tier)
	}

	for _, e := range report.RecentAnomalies(ds, det, ds.Len()) {
		rec.Anomalies = append(rec.Anomalies, &AnomalyRecord{
			SampleIndex: e.Index,
			Timestamp:   e.Timestamp,
			HeartRate:   e.HeartRate,
			BloodOxygen: e.BloodOxygen,
			Score:       e.Score,
		})
	}
	for _, in := range rep.Insights {
		rec.Insights = append(rec.Insights, &InsightRecord{
			Category: string(in.Category),
			Kind:     string(in.Kind),
			Message:  in.Message,
		})
	}
	return rec, nil
}
