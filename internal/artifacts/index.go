package artifacts

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode = WAL;`

	reportsTableSchema = `CREATE TABLE IF NOT EXISTS reports (
		task_id TEXT PRIMARY KEY,
		result TEXT NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0
	);`
)

// Index is a disposable, rebuild-from-JSON sqlite cache used only to make
// `status`/`inspect` fast across large trees. It is never consulted to
// decide engine state — callers must always be able to delete it and
// rebuild from the report files (and, ultimately, git) with no behavior
// change.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the sqlite index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open index %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// EnsureSchema creates the reports table if it does not already exist.
func (idx *Index) EnsureSchema(ctx context.Context) error {
	if idx == nil || idx.db == nil {
		return fmt.Errorf("artifacts: index is not initialized")
	}
	if _, err := idx.db.ExecContext(ctx, pragmaJournalModeWAL); err != nil {
		return fmt.Errorf("artifacts: set journal mode WAL: %w", err)
	}
	if _, err := idx.db.ExecContext(ctx, reportsTableSchema); err != nil {
		return fmt.Errorf("artifacts: create reports table: %w", err)
	}
	return nil
}

// Rebuild wipes and repopulates the index from store's report files. It
// is always safe to call this instead of trusting stale index state.
func (idx *Index) Rebuild(ctx context.Context, store *Store) error {
	if idx == nil || idx.db == nil {
		return fmt.Errorf("artifacts: index is not initialized")
	}
	ids, err := store.ListReports()
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("artifacts: begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports;`); err != nil {
		return fmt.Errorf("artifacts: clear reports table: %w", err)
	}
	for _, id := range ids {
		report, err := store.ReadReport(id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reports (task_id, result, retries) VALUES (?, ?, ?);`,
			report.TaskID, report.Result, report.Retries,
		); err != nil {
			return fmt.Errorf("artifacts: insert report for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Summary is one row of the rebuilt index, returned to `status`/`inspect`.
type Summary struct {
	TaskID  string
	Result  string
	Retries int
}

// List returns every indexed report summary.
func (idx *Index) List(ctx context.Context) ([]Summary, error) {
	if idx == nil || idx.db == nil {
		return nil, fmt.Errorf("artifacts: index is not initialized")
	}
	rows, err := idx.db.QueryContext(ctx, `SELECT task_id, result, retries FROM reports ORDER BY task_id;`)
	if err != nil {
		return nil, fmt.Errorf("artifacts: list reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.TaskID, &s.Result, &s.Retries); err != nil {
			return nil, fmt.Errorf("artifacts: scan report row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
