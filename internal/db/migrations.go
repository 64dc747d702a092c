package db

// migration is one schema step. Versions are tracked in schema_versions.
type migration struct {
	version int
	sql     string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    created_at      TEXT NOT NULL,
    days            INTEGER NOT NULL,
    samples_per_day INTEGER NOT NULL,
    seed            INTEGER NOT NULL,
    samples         INTEGER NOT NULL,
    contamination   REAL NOT NULL,
    threshold       REAL NOT NULL DEFAULT 0.0,
    flagged         INTEGER NOT NULL DEFAULT 0,
    insufficient    INTEGER NOT NULL DEFAULT 0,
    overall_score   REAL NOT NULL,
    tier            TEXT NOT NULL,
    report          TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS run_anomalies (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    sample_index INTEGER NOT NULL,
    ts           TEXT NOT NULL,
    heart_rate   INTEGER NOT NULL,
    blood_oxygen REAL NOT NULL,
    score        REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_run_anomalies_run ON run_anomalies(run_id, sample_index);

CREATE TABLE IF NOT EXISTS run_insights (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    category TEXT NOT NULL,
    kind     TEXT NOT NULL,
    message  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_insights_run ON run_insights(run_id, position);
`,
	},
}

var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    created_at      TIMESTAMPTZ NOT NULL,
    days            INTEGER NOT NULL,
    samples_per_day INTEGER NOT NULL,
    seed            BIGINT NOT NULL,
    samples         INTEGER NOT NULL,
    contamination   DOUBLE PRECISION NOT NULL,
    threshold       DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    flagged         INTEGER NOT NULL DEFAULT 0,
    insufficient    BOOLEAN NOT NULL DEFAULT FALSE,
    overall_score   DOUBLE PRECISION NOT NULL,
    tier            TEXT NOT NULL,
    report          JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS run_anomalies (
    id           BIGSERIAL PRIMARY KEY,
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    sample_index INTEGER NOT NULL,
    ts           TIMESTAMPTZ NOT NULL,
    heart_rate   INTEGER NOT NULL,
    blood_oxygen DOUBLE PRECISION NOT NULL,
    score        DOUBLE PRECISION NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_run_anomalies_run ON run_anomalies(run_id, sample_index);

CREATE TABLE IF NOT EXISTS run_insights (
    id       BIGSERIAL PRIMARY KEY,
    run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    category TEXT NOT NULL,
    kind     TEXT NOT NULL,
    message  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_insights_run ON run_insights(run_id, position);
`,
	},
}
