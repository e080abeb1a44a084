package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datapipe-cli/internal/db"
	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// value_decimal is NUMERIC; register the shopspring codec so exact
	// decimals round-trip without float conversion.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	// The server may still be coming up when the pipeline starts.
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("postgres", "ping")
	if err := resilience.Do(ctx, retryCfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	event_time  TIMESTAMPTZ NOT NULL,
	category    TEXT NOT NULL,
	value       TEXT NOT NULL,
	row_num     INTEGER NOT NULL,
	payload     JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT uq_raw_records_source_record_hash UNIQUE (source, record_hash)
);

CREATE INDEX IF NOT EXISTS ix_raw_records_run_id ON raw_records(run_id);
CREATE INDEX IF NOT EXISTS ix_raw_records_source_event_time ON raw_records(source, event_time);
CREATE INDEX IF NOT EXISTS ix_raw_records_source_source_id ON raw_records(source, source_id);
CREATE INDEX IF NOT EXISTS ix_raw_records_category ON raw_records(category);
CREATE INDEX IF NOT EXISTS ix_raw_records_ingested_at ON raw_records(ingested_at);

CREATE TABLE IF NOT EXISTS clean_records (
	id            TEXT PRIMARY KEY,
	raw_id        TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	record_hash   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	event_time    TIMESTAMPTZ NOT NULL,
	category      TEXT,
	value_text    TEXT,
	value_decimal NUMERIC(18,4),
	payload_clean JSONB NOT NULL DEFAULT '{}'::jsonb,
	cleaned_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT uq_clean_records_source_record_hash UNIQUE (source, record_hash)
);

CREATE INDEX IF NOT EXISTS ix_clean_records_source_event_time ON clean_records(source, event_time);
CREATE INDEX IF NOT EXISTS ix_clean_records_category ON clean_records(category);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            TEXT PRIMARY KEY,
	pipeline      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ,
	duration_ms   BIGINT,
	input_ref     TEXT,
	meta          JSONB NOT NULL DEFAULT '{}'::jsonb,
	steps         JSONB NOT NULL DEFAULT '[]'::jsonb,
	records_in    BIGINT,
	records_out   BIGINT,
	error_kind    TEXT,
	error_message TEXT,
	error_summary TEXT
);

CREATE INDEX IF NOT EXISTS ix_pipeline_runs_pipeline ON pipeline_runs(pipeline);
CREATE INDEX IF NOT EXISTS ix_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS ix_pipeline_runs_started_at ON pipeline_runs(started_at);
`

const postgresMetricsViews = `
CREATE SCHEMA IF NOT EXISTS summary;

CREATE OR REPLACE VIEW summary.daily_metrics AS
SELECT
	(event_time AT TIME ZONE 'UTC')::date AS day,
	count(*)                     AS total_records,
	count(DISTINCT record_hash)  AS distinct_records,
	count(DISTINCT source_id)    AS distinct_source_ids,
	count(DISTINCT source)       AS distinct_sources,
	count(DISTINCT category)     AS distinct_categories
FROM clean_records
GROUP BY 1;

CREATE OR REPLACE VIEW summary.monthly_metrics AS
SELECT
	date_trunc('month', event_time AT TIME ZONE 'UTC')::date AS month_start,
	count(*)                     AS total_records,
	count(DISTINCT record_hash)  AS distinct_records,
	count(DISTINCT source_id)    AS distinct_source_ids,
	count(DISTINCT source)       AS distinct_sources,
	count(DISTINCT category)     AS distinct_categories
FROM clean_records
GROUP BY 1;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateIngestRun(ctx context.Context, source, files string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Source:    source,
		Files:     files,
		Status:    model.IngestStatusStarted,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, created_at, source, status, files) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.CreatedAt, run.Source, string(run.Status), run.Files,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingest run")
	}
	return run, nil
}

func (s *PostgresStore) FinishIngestRun(ctx context.Context, runID string, status model.IngestStatus, errText string) error {
	var errVal *string
	if errText != "" {
		errVal = &errText
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, error = $2 WHERE id = $3`,
		string(status), errVal, runID,
	)
	return eris.Wrapf(err, "postgres: finish ingest run %s", runID)
}

var rawRecordColumns = []string{
	"id", "run_id", "source", "record_hash", "source_id",
	"event_time", "category", "value", "row_num", "payload", "ingested_at",
}

func (s *PostgresStore) InsertRawRecords(ctx context.Context, recs []model.RawRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		payloadJSON, err := json.Marshal(r.Payload)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal raw payload")
		}
		rows = append(rows, []any{
			r.ID, r.RunID, r.Source, r.RecordHash, r.SourceID,
			r.EventTime, r.Category, r.Value, r.RowNum, string(payloadJSON), r.IngestedAt,
		})
	}

	inserted, err := db.BulkWrite(ctx, s.pool, db.BulkConfig{
		Table:        "raw_records",
		Columns:      rawRecordColumns,
		ConflictKeys: []string{"source", "record_hash"},
		Policy:       db.Ignore,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert raw records")
	}
	return inserted, nil
}

func (s *PostgresStore) ListRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, source, record_hash, source_id, event_time, category, value, row_num, payload, ingested_at
		 FROM raw_records ORDER BY ingested_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var payloadJSON []byte
		if err := rows.Scan(&r.ID, &r.RunID, &r.Source, &r.RecordHash, &r.SourceID,
			&r.EventTime, &r.Category, &r.Value, &r.RowNum, &payloadJSON, &r.IngestedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal raw payload")
			}
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) CountRawRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_records`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count raw records")
	}
	return n, nil
}

var cleanRecordColumns = []string{
	"id", "raw_id", "run_id", "source", "record_hash", "source_id",
	"event_time", "category", "value_text", "value_decimal", "payload_clean", "cleaned_at",
}

func (s *PostgresStore) UpsertCleanRecords(ctx context.Context, recs []model.CleanRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		payloadJSON, err := json.Marshal(r.PayloadClean)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal clean payload")
		}
		rows = append(rows, []any{
			r.ID, r.RawID, r.RunID, r.Source, r.RecordHash, r.SourceID,
			r.EventTime, r.Category, r.ValueText, r.ValueDecimal, string(payloadJSON), r.CleanedAt,
		})
	}

	_, err := db.BulkWrite(ctx, s.pool, db.BulkConfig{
		Table:        "clean_records",
		Columns:      cleanRecordColumns,
		ConflictKeys: []string{"source", "record_hash"},
		Policy:       db.Overwrite,
	}, rows)
	return eris.Wrap(err, "postgres: upsert clean records")
}

func (s *PostgresStore) CountCleanRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clean_records`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count clean records")
	}
	return n, nil
}

func (s *PostgresStore) CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	metaJSON, stepsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, pipeline, status, started_at, input_ref, meta, steps)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Pipeline, string(run.Status), run.StartedAt, run.InputRef, metaJSON, stepsJSON,
	)
	return eris.Wrap(err, "postgres: insert pipeline run")
}

func (s *PostgresStore) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	metaJSON, stepsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status = $1, ended_at = $2, duration_ms = $3, meta = $4, steps = $5,
		     records_in = $6, records_out = $7, error_kind = $8, error_message = $9, error_summary = $10
		 WHERE id = $11`,
		string(run.Status), run.EndedAt, run.DurationMS, metaJSON, stepsJSON,
		run.RecordsIn, run.RecordsOut, run.ErrorKind, run.ErrorMessage, run.ErrorSummary, run.ID,
	)
	return eris.Wrapf(err, "postgres: update pipeline run %s", run.ID)
}

func (s *PostgresStore) GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pipeline, status, started_at, ended_at, duration_ms, input_ref, meta, steps,
		        records_in, records_out, error_kind, error_message, error_summary
		 FROM pipeline_runs WHERE id = $1`,
		runID,
	)
	run, err := scanPipelineRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pipeline run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, pipeline, status, started_at, ended_at, duration_ms, input_ref, meta, steps,
		        records_in, records_out, error_kind, error_message, error_summary
		 FROM pipeline_runs
		 WHERE ($1 = '' OR pipeline = $1)
		   AND ($2 = '' OR status = $2)
		 ORDER BY started_at DESC LIMIT $3`,
		filter.Pipeline, string(filter.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pipeline run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) ApplyMetricsViews(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMetricsViews)
	return eris.Wrap(err, "postgres: apply metrics views")
}

func (s *PostgresStore) DailyMetrics(ctx context.Context, days int) ([]model.DailyMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, total_records, distinct_records, distinct_source_ids, distinct_sources, distinct_categories
		 FROM summary.daily_metrics
		 WHERE day >= current_date - $1::int
		 ORDER BY day`,
		days,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: daily metrics")
	}
	defer rows.Close()

	var out []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		if err := rows.Scan(&m.Day, &m.TotalRecords, &m.DistinctRecords,
			&m.DistinctSourceIDs, &m.DistinctSources, &m.DistinctCategories); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily metric")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MonthlyMetrics(ctx context.Context) ([]model.MonthlyMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT month_start, total_records, distinct_records, distinct_source_ids, distinct_sources, distinct_categories
		 FROM summary.monthly_metrics
		 ORDER BY month_start`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: monthly metrics")
	}
	defer rows.Close()

	var out []model.MonthlyMetric
	for rows.Next() {
		var m model.MonthlyMetric
		if err := rows.Scan(&m.MonthStart, &m.TotalRecords, &m.DistinctRecords,
			&m.DistinctSourceIDs, &m.DistinctSources, &m.DistinctCategories); err != nil {
			return nil, eris.Wrap(err, "postgres: scan monthly metric")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// marshalRunJSON encodes the meta and steps columns for a pipeline run.
func marshalRunJSON(run *model.PipelineRun) (string, string, error) {
	meta := run.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal run meta")
	}

	steps := run.Steps
	if steps == nil {
		steps = []model.StepInfo{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal run steps")
	}
	return string(metaJSON), string(stepsJSON), nil
}

// scanPipelineRun reads one pipeline_runs row via the given scan function.
func scanPipelineRun(scan func(dest ...any) error) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var status string
	var metaJSON, stepsJSON []byte
	if err := scan(&run.ID, &run.Pipeline, &status, &run.StartedAt, &run.EndedAt, &run.DurationMS,
		&run.InputRef, &metaJSON, &stepsJSON, &run.RecordsIn, &run.RecordsOut,
		&run.ErrorKind, &run.ErrorMessage, &run.ErrorSummary); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &run.Meta); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run meta")
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run steps")
		}
	}
	return &run, nil
}
