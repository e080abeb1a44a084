package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/datapipe-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the local and
// demo backend; the (source, record_hash) dedupe semantics are identical to
// Postgres because SQLite's ON CONFLICT clause is an atomic conditional
// insert too.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'started',
	files      TEXT NOT NULL,
	error      TEXT
);

CREATE TABLE IF NOT EXISTS raw_records (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES ingest_runs(id),
	source      TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	event_time  DATETIME NOT NULL,
	category    TEXT NOT NULL,
	value       TEXT NOT NULL,
	row_num     INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	ingested_at DATETIME NOT NULL,
	UNIQUE (source, record_hash)
);

CREATE INDEX IF NOT EXISTS ix_raw_records_run_id ON raw_records(run_id);
CREATE INDEX IF NOT EXISTS ix_raw_records_ingested_at ON raw_records(ingested_at);

CREATE TABLE IF NOT EXISTS clean_records (
	id            TEXT PRIMARY KEY,
	raw_id        TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	record_hash   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	event_time    DATETIME NOT NULL,
	category      TEXT,
	value_text    TEXT,
	value_decimal TEXT,
	payload_clean TEXT NOT NULL DEFAULT '{}',
	cleaned_at    DATETIME NOT NULL,
	UNIQUE (source, record_hash)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            TEXT PRIMARY KEY,
	pipeline      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL,
	ended_at      DATETIME,
	duration_ms   INTEGER,
	input_ref     TEXT,
	meta          TEXT NOT NULL DEFAULT '{}',
	steps         TEXT NOT NULL DEFAULT '[]',
	records_in    INTEGER,
	records_out   INTEGER,
	error_kind    TEXT,
	error_message TEXT,
	error_summary TEXT
);

CREATE INDEX IF NOT EXISTS ix_pipeline_runs_pipeline ON pipeline_runs(pipeline);
CREATE INDEX IF NOT EXISTS ix_pipeline_runs_started_at ON pipeline_runs(started_at);
`

const sqliteMetricsViews = `
DROP VIEW IF EXISTS daily_metrics;
CREATE VIEW daily_metrics AS
SELECT
	date(event_time)             AS day,
	count(*)                     AS total_records,
	count(DISTINCT record_hash)  AS distinct_records,
	count(DISTINCT source_id)    AS distinct_source_ids,
	count(DISTINCT source)       AS distinct_sources,
	count(DISTINCT category)     AS distinct_categories
FROM clean_records
GROUP BY 1;

DROP VIEW IF EXISTS monthly_metrics;
CREATE VIEW monthly_metrics AS
SELECT
	date(event_time, 'start of month') AS month_start,
	count(*)                     AS total_records,
	count(DISTINCT record_hash)  AS distinct_records,
	count(DISTINCT source_id)    AS distinct_source_ids,
	count(DISTINCT source)       AS distinct_sources,
	count(DISTINCT category)     AS distinct_categories
FROM clean_records
GROUP BY 1;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIngestRun(ctx context.Context, source, files string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Source:    source,
		Files:     files,
		Status:    model.IngestStatusStarted,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, created_at, source, status, files) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Source, string(run.Status), run.Files,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingest run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishIngestRun(ctx context.Context, runID string, status model.IngestStatus, errText string) error {
	var errVal any
	if errText != "" {
		errVal = errText
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, error = ? WHERE id = ?`,
		string(status), errVal, runID,
	)
	return eris.Wrapf(err, "sqlite: finish ingest run %s", runID)
}

func (s *SQLiteStore) InsertRawRecords(ctx context.Context, recs []model.RawRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert raw records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_records (id, run_id, source, record_hash, source_id, event_time, category, value, row_num, payload, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, record_hash) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert raw record")
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range recs {
		payloadJSON, err := json.Marshal(r.Payload)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal raw payload")
		}
		res, err := stmt.ExecContext(ctx,
			r.ID, r.RunID, r.Source, r.RecordHash, r.SourceID,
			r.EventTime, r.Category, r.Value, r.RowNum, string(payloadJSON), r.IngestedAt,
		)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert raw record")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert raw records")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, record_hash, source_id, event_time, category, value, row_num, payload, ingested_at
		 FROM raw_records ORDER BY ingested_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var payloadJSON string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Source, &r.RecordHash, &r.SourceID,
			&r.EventTime, &r.Category, &r.Value, &r.RowNum, &payloadJSON, &r.IngestedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		if err := json.Unmarshal([]byte(payloadJSON), &r.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw payload")
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) CountRawRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM raw_records`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count raw records")
	}
	return n, nil
}

func (s *SQLiteStore) UpsertCleanRecords(ctx context.Context, recs []model.CleanRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert clean records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clean_records (id, raw_id, run_id, source, record_hash, source_id, event_time, category, value_text, value_decimal, payload_clean, cleaned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, record_hash) DO UPDATE SET
		   raw_id = excluded.raw_id,
		   run_id = excluded.run_id,
		   source_id = excluded.source_id,
		   event_time = excluded.event_time,
		   category = excluded.category,
		   value_text = excluded.value_text,
		   value_decimal = excluded.value_decimal,
		   payload_clean = excluded.payload_clean,
		   cleaned_at = excluded.cleaned_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert clean record")
	}
	defer stmt.Close()

	for _, r := range recs {
		payloadJSON, err := json.Marshal(r.PayloadClean)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal clean payload")
		}
		var valueDecimal any
		if r.ValueDecimal != nil {
			valueDecimal = r.ValueDecimal.String()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.RawID, r.RunID, r.Source, r.RecordHash, r.SourceID,
			r.EventTime, r.Category, r.ValueText, valueDecimal, string(payloadJSON), r.CleanedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: upsert clean record")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert clean records")
}

func (s *SQLiteStore) CountCleanRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM clean_records`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count clean records")
	}
	return n, nil
}

func (s *SQLiteStore) CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	metaJSON, stepsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	var inputRef any
	if run.InputRef != nil {
		inputRef = *run.InputRef
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, pipeline, status, started_at, input_ref, meta, steps)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, string(run.Status), run.StartedAt, inputRef, metaJSON, stepsJSON,
	)
	return eris.Wrap(err, "sqlite: insert pipeline run")
}

func (s *SQLiteStore) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	metaJSON, stepsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE pipeline_runs
		 SET status = ?, ended_at = ?, duration_ms = ?, meta = ?, steps = ?,
		     records_in = ?, records_out = ?, error_kind = ?, error_message = ?, error_summary = ?
		 WHERE id = ?`,
		string(run.Status), run.EndedAt, run.DurationMS, metaJSON, stepsJSON,
		run.RecordsIn, run.RecordsOut, run.ErrorKind, run.ErrorMessage, run.ErrorSummary, run.ID,
	)
	return eris.Wrapf(err, "sqlite: update pipeline run %s", run.ID)
}

func (s *SQLiteStore) GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, status, started_at, ended_at, duration_ms, input_ref, meta, steps,
		        records_in, records_out, error_kind, error_message, error_summary
		 FROM pipeline_runs WHERE id = ?`,
		runID,
	)
	run, err := scanPipelineRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pipeline run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, status, started_at, ended_at, duration_ms, input_ref, meta, steps,
		        records_in, records_out, error_kind, error_message, error_summary
		 FROM pipeline_runs
		 WHERE (? = '' OR pipeline = ?)
		   AND (? = '' OR status = ?)
		 ORDER BY started_at DESC LIMIT ?`,
		filter.Pipeline, filter.Pipeline, string(filter.Status), string(filter.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) ApplyMetricsViews(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMetricsViews)
	return eris.Wrap(err, "sqlite: apply metrics views")
}

func (s *SQLiteStore) DailyMetrics(ctx context.Context, days int) ([]model.DailyMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, total_records, distinct_records, distinct_source_ids, distinct_sources, distinct_categories
		 FROM daily_metrics
		 WHERE day >= date('now', ?)
		 ORDER BY day`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: daily metrics")
	}
	defer rows.Close()

	var out []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		var day string
		if err := rows.Scan(&day, &m.TotalRecords, &m.DistinctRecords,
			&m.DistinctSourceIDs, &m.DistinctSources, &m.DistinctCategories); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily metric")
		}
		m.Day, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse metric day")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MonthlyMetrics(ctx context.Context) ([]model.MonthlyMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month_start, total_records, distinct_records, distinct_source_ids, distinct_sources, distinct_categories
		 FROM monthly_metrics
		 ORDER BY month_start`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: monthly metrics")
	}
	defer rows.Close()

	var out []model.MonthlyMetric
	for rows.Next() {
		var m model.MonthlyMetric
		var month string
		if err := rows.Scan(&month, &m.TotalRecords, &m.DistinctRecords,
			&m.DistinctSourceIDs, &m.DistinctSources, &m.DistinctCategories); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan monthly metric")
		}
		m.MonthStart, err = time.Parse("2006-01-02", month)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse metric month")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
