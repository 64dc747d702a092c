package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(id string, created time.Time) *RunRecord {
	return &RunRecord{
		ID:            id,
		CreatedAt:     created,
		Days:          30,
		SamplesPerDay: 24,
		Seed:          42,
		Samples:       720,
		Contamination: 0.1,
		Threshold:     0.58,
		Flagged:       2,
		OverallScore:  91.5,
		Tier:          "Excellent",
		Report:        json.RawMessage(`{"samples":720}`),
		Anomalies: []*AnomalyRecord{
			{SampleIndex: 17, Timestamp: created.Add(-2 * time.Hour), HeartRate: 104, BloodOxygen: 86.2, Score: 0.71},
			{SampleIndex: 3, Timestamp: created.Add(-5 * time.Hour), HeartRate: 52, BloodOxygen: 88.0, Score: 0.66},
		},
		Insights: []*InsightRecord{
			{Category: "heart", Kind: "info", Message: "Your heart rate is within normal range."},
			{Category: "oxygen", Kind: "positive", Message: "Blood oxygen levels are healthy."},
		},
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t).(*sqlStore)
	ctx := context.Background()

	if err := store.migrate(ctx, sqliteMigrations); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var count int
	if err := store.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schema_versions`); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != len(sqliteMigrations) {
		t.Errorf("schema_versions rows = %d, want %d", count, len(sqliteMigrations))
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("run-1", created)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Seed != 42 || got.Samples != 720 || got.Flagged != 2 {
		t.Errorf("unexpected run fields: %+v", got)
	}
	if got.Tier != "Excellent" || got.OverallScore != 91.5 {
		t.Errorf("score = %v %q", got.OverallScore, got.Tier)
	}
	if got.Insufficient {
		t.Error("Insufficient should be false")
	}
	if string(got.Report) != `{"samples":720}` {
		t.Errorf("Report = %q", got.Report)
	}
	if len(got.Insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(got.Insights))
	}
	if got.Insights[0].Category != "heart" || got.Insights[1].Position != 1 {
		t.Errorf("insight order lost: %+v %+v", got.Insights[0], got.Insights[1])
	}
}

func TestSaveRunAssignsID(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRun("", time.Time{})
	if err := store.SaveRun(context.Background(), rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if _, err := store.GetRun(context.Background(), rec.ID); err != nil {
		t.Errorf("GetRun(%s): %v", rec.ID, err)
	}
}

func TestSaveRunDuplicateRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("dup", created)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("dup", created)); err == nil {
		t.Fatal("expected duplicate ID error")
	}
	anomalies, err := store.RunAnomalies(ctx, "dup")
	if err != nil {
		t.Fatalf("RunAnomalies: %v", err)
	}
	if len(anomalies) != 2 {
		t.Errorf("anomalies = %d, want 2 after failed duplicate", len(anomalies))
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
	_, err = store.RunAnomalies(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("RunAnomalies err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}
	// sub-second ordering must follow time, not text
	if err := store.SaveRun(ctx, sampleRun("d", base.Add(2*time.Hour+500*time.Millisecond))); err != nil {
		t.Fatalf("SaveRun(d): %v", err)
	}

	runs, err := store.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	want := []string{"d", "c", "b"}
	for i, r := range runs {
		if r.ID != want[i] {
			t.Errorf("runs[%d] = %s, want %s", i, r.ID, want[i])
		}
		if r.Report != nil || r.Insights != nil {
			t.Errorf("list must not carry report or children")
		}
	}
}

func TestRunAnomaliesSortedBySample(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("r", created)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := store.RunAnomalies(ctx, "r")
	if err != nil {
		t.Fatalf("RunAnomalies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("anomalies = %d, want 2", len(got))
	}
	if got[0].SampleIndex != 3 || got[1].SampleIndex != 17 {
		t.Errorf("order = %d,%d want 3,17", got[0].SampleIndex, got[1].SampleIndex)
	}
	if !got[1].Timestamp.Equal(created.Add(-2*time.Hour)) || got[1].HeartRate != 104 {
		t.Errorf("anomaly fields lost: %+v", got[1])
	}
	if got[0].RunID != "r" {
		t.Errorf("RunID = %q", got[0].RunID)
	}
}

func TestNewRunRecordFromAnalysis(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 7, 0, 0, 0, time.UTC)
	engine, err := analytics.NewEngine(ml.DefaultDetectorOptions(), analytics.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ds, err := engine.Generate(ctx, 10, 24, 42)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	res, err := engine.Run(ctx, ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, err := NewRunRecord(ds, res.Detection, res.Report)
	if err != nil {
		t.Fatalf("NewRunRecord: %v", err)
	}
	if len(rec.Anomalies) != res.Detection.FlaggedCount() {
		t.Errorf("anomalies = %d, want %d", len(rec.Anomalies), res.Detection.FlaggedCount())
	}
	if len(rec.Insights) != len(res.Report.Insights) {
		t.Errorf("insights = %d, want %d", len(rec.Insights), len(res.Report.Insights))
	}

	store := newTestStore(t)
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := store.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Tier != string(res.Report.Score.Tier) || !got.CreatedAt.Equal(now) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestOpenRejectsUnknownType(t *testing.T) {
	if _, err := Open(context.Background(), Options{Type: "oracle"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := Open(context.Background(), Options{Type: TypeSQLite}); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{
		"2026-01-02T03:04:05Z",
		"2026-01-02T03:04:05.000000000Z",
		"2026-01-02 03:04:05",
	} {
		if got := parseTime(in); !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v", in, got)
		}
	}
	if !parseTime("garbage").IsZero() {
		t.Error("garbage should parse to zero time")
	}
}
