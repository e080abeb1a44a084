package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ConflictPolicy decides what happens when an inserted row collides with an
// existing one on the conflict keys.
type ConflictPolicy int

const (
	// Ignore drops the conflicting row and counts it as not inserted.
	// This is the dedupe policy for raw records: a single atomic
	// conditional insert, correct under concurrent writers.
	Ignore ConflictPolicy = iota

	// Overwrite updates the non-key columns from the incoming row
	// (last-write-wins). This is the clean-record refresh policy.
	Overwrite
)

// BulkConfig defines the parameters for a conditional bulk write.
type BulkConfig struct {
	Table        string         // target table (e.g., "raw_records")
	Columns      []string       // all columns being inserted
	ConflictKeys []string       // columns forming the unique constraint
	Policy       ConflictPolicy // what to do on conflict
	UpdateCols   []string       // Overwrite only; nil = all non-key columns
}

// BulkWrite performs a conditional bulk insert via a temp table:
//  1. Create a temp table with the target's structure
//  2. COPY rows into the temp table
//  3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO
//     NOTHING (Ignore) or DO UPDATE SET ... (Overwrite)
//
// The whole operation runs in one transaction, so a batch is all-or-nothing.
// The returned count is rows actually inserted or updated; with Ignore,
// parsed − returned = deduped.
func BulkWrite(ctx context.Context, pool Pool, cfg BulkConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: bulk write: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: bulk write: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: bulk write: begin tx")
	}
	defer tx.Rollback(ctx)

	tempTable := fmt.Sprintf("_tmp_bulk_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: bulk write: create temp table for %s", cfg.Table)
	}

	copySource := pgx.CopyFromRows(rows)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, copySource); err != nil {
		return 0, eris.Wrapf(err, "db: bulk write: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)

	var conflictClause string
	switch cfg.Policy {
	case Ignore:
		conflictClause = fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflictList)
	case Overwrite:
		updateCols := cfg.UpdateCols
		if updateCols == nil {
			conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
			for _, k := range cfg.ConflictKeys {
				conflictSet[k] = true
			}
			for _, c := range cfg.Columns {
				if !conflictSet[c] {
					updateCols = append(updateCols, c)
				}
			}
		}
		setClauses := make([]string, 0, len(updateCols))
		for _, col := range updateCols {
			q := pgx.Identifier{col}.Sanitize()
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
		conflictClause = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictList, strings.Join(setClauses, ", "))
	default:
		return 0, eris.Errorf("db: bulk write: unknown conflict policy %d", cfg.Policy)
	}

	writeSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		conflictClause,
	)

	tag, err := tx.Exec(ctx, writeSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk write: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: bulk write: commit tx")
	}

	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "summary.daily_metrics".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
