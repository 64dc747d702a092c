package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kubilitics/kubilitics-vitals/internal/metrics"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know as a '?' driver.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Options selects and locates the backing database.
type Options struct {
	Type        string
	SQLitePath  string
	PostgresURL string
}

// Open connects to the database named by opts and applies migrations.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Type) {
	case "", TypeSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case TypePostgres:
		return NewPostgresStore(ctx, opts.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported database type %q", opts.Type)
	}
}

type sqlStore struct {
	db      *sqlx.DB
	dialect string
}

// NewSQLiteStore opens (or creates) a SQLite database at path. ":memory:"
// yields a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps writes serialized and :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &sqlStore{db: db, dialect: TypeSQLite}
	if err := s.migrate(ctx, sqliteMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(ctx context.Context, connString string) (Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqlStore{db: db, dialect: TypePostgres}
	if err := s.migrate(ctx, postgresMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context, migrations []migration) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)`),
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SaveRun implements RunStore.
func (s *sqlStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if err := s.saveRun(ctx, rec); err != nil {
		metrics.RunsPersisted.WithLabelValues("error").Inc()
		return err
	}
	metrics.RunsPersisted.WithLabelValues("ok").Inc()
	return nil
}

func (s *sqlStore) saveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return fmt.Errorf("run record is nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.Report) == 0 {
		rec.Report = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO runs (id, created_at, days, samples_per_day, seed, samples, contamination,
			threshold, flagged, insufficient, overall_score, tier, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, s.formatTime(rec.CreatedAt), rec.Days, rec.SamplesPerDay, rec.Seed, rec.Samples, rec.Contamination,
		rec.Threshold, rec.Flagged, rec.Insufficient, rec.OverallScore, rec.Tier, string(rec.Report))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, a := range rec.Anomalies {
		a.RunID = rec.ID
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO run_anomalies (run_id, sample_index, ts, heart_rate, blood_oxygen, score)
			VALUES (?, ?, ?, ?, ?, ?)`),
			a.RunID, a.SampleIndex, s.formatTime(a.Timestamp), a.HeartRate, a.BloodOxygen, a.Score); err != nil {
			return fmt.Errorf("insert anomaly %d: %w", a.SampleIndex, err)
		}
	}

	for i, in := range rec.Insights {
		in.RunID = rec.ID
		in.Position = i
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO run_insights (run_id, position, category, kind, message)
			VALUES (?, ?, ?, ?, ?)`),
			in.RunID, in.Position, in.Category, in.Kind, in.Message); err != nil {
			return fmt.Errorf("insert insight %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

type runRow struct {
	ID            string  `db:"id"`
	CreatedAt     string  `db:"created_at"`
	Days          int     `db:"days"`
	SamplesPerDay int     `db:"samples_per_day"`
	Seed          int64   `db:"seed"`
	Samples       int     `db:"samples"`
	Contamination float64 `db:"contamination"`
	Threshold     float64 `db:"threshold"`
	Flagged       int     `db:"flagged"`
	Insufficient  bool    `db:"insufficient"`
	OverallScore  float64 `db:"overall_score"`
	Tier          string  `db:"tier"`
	Report        string  `db:"report"`
}

func (r runRow) record() *RunRecord {
	rec := &RunRecord{
		ID:            r.ID,
		CreatedAt:     parseTime(r.CreatedAt),
		Days:          r.Days,
		SamplesPerDay: r.SamplesPerDay,
		Seed:          r.Seed,
		Samples:       r.Samples,
		Contamination: r.Contamination,
		Threshold:     r.Threshold,
		Flagged:       r.Flagged,
		Insufficient:  r.Insufficient,
		OverallScore:  r.OverallScore,
		Tier:          r.Tier,
	}
	if r.Report != "" {
		rec.Report = json.RawMessage(r.Report)
	}
	return rec
}

// GetRun implements RunStore.
func (s *sqlStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, created_at, days, samples_per_day, seed, samples, contamination,
			threshold, flagged, insufficient, overall_score, tier, report
		FROM runs WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rec := row.record()
	var insights []*InsightRecord
	if err := s.db.SelectContext(ctx, &insights, s.db.Rebind(`
		SELECT id, run_id, position, category, kind, message
		FROM run_insights WHERE run_id = ? ORDER BY position`), id); err != nil {
		return nil, fmt.Errorf("get run insights: %w", err)
	}
	rec.Insights = insights
	return rec, nil
}

// ListRuns implements RunStore.
func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, created_at, days, samples_per_day, seed, samples, contamination,
			threshold, flagged, insufficient, overall_score, tier
		FROM runs ORDER BY created_at DESC, id LIMIT ?`), limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*RunRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

type anomalyRow struct {
	ID          int64   `db:"id"`
	RunID       string  `db:"run_id"`
	SampleIndex int     `db:"sample_index"`
	Timestamp   string  `db:"ts"`
	HeartRate   int     `db:"heart_rate"`
	BloodOxygen float64 `db:"blood_oxygen"`
	Score       float64 `db:"score"`
}

// RunAnomalies implements RunStore.
func (s *sqlStore) RunAnomalies(ctx context.Context, runID string) ([]*AnomalyRecord, error) {
	var exists int
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), runID); err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var rows []anomalyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, run_id, sample_index, ts, heart_rate, blood_oxygen, score
		FROM run_anomalies WHERE run_id = ? ORDER BY sample_index`), runID); err != nil {
		return nil, fmt.Errorf("list run anomalies: %w", err)
	}

	out := make([]*AnomalyRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, &AnomalyRecord{
			ID:          r.ID,
			RunID:       r.RunID,
			SampleIndex: r.SampleIndex,
			Timestamp:   parseTime(r.Timestamp),
			HeartRate:   r.HeartRate,
			BloodOxygen: r.BloodOxygen,
			Score:       r.Score,
		})
	}
	return out, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// sqliteTimeLayout has fixed-width fractions so text order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders t for the dialect. SQLite keeps sortable RFC3339 text;
// PostgreSQL takes the value natively.
func (s *sqlStore) formatTime(t time.Time) interface{} {
	if s.dialect == TypeSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// parseTime accepts the layouts either driver may hand back.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
