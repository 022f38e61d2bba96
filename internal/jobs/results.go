package jobs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// ResultStore is a separate database from the status store so large result
// tables never block job-status reads, per spec.md §4.H/§6.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore opens (creating if absent) the results database at path.
func NewResultStore(path string) (*ResultStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "failed to create results db directory", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to open results database", err)
	}
	return &ResultStore{db: db}, nil
}

var unsafeIdentChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

// tableName builds the "{job_id}_{stage}" table name spec.md §4.H/§6 names,
// rejecting characters that would let either part break out of the
// double-quoted identifier its callers wrap it in.
func tableName(jobID, stage string) (string, error) {
	if unsafeIdentChar.MatchString(jobID) || unsafeIdentChar.MatchString(stage) {
		return "", apperr.New(apperr.InputInvalid, "job id or stage name contains unsupported characters")
	}
	return fmt.Sprintf("%s_%s", jobID, stage), nil
}

// SaveTable persists a Table as "{job_id}_{stage_name}", replacing any
// existing table of that name — the Go equivalent of pandas'
// `to_sql(..., if_exists="replace")` in original_source/pipeline/api/app.py's
// store_step_output.
func (r *ResultStore) SaveTable(jobID, stage string, t Table) error {
	name, err := tableName(jobID, stage)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to begin results transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to drop existing result table", err)
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf(`"%s" TEXT`, strings.ReplaceAll(c, `"`, `""`))
	}
	createSQL := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, name, strings.Join(cols, ", "))
	if _, err := tx.Exec(createSQL); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to create result table", err)
	}

	if len(t.Columns) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",")
		insertSQL := fmt.Sprintf(`INSERT INTO "%s" VALUES (%s)`, name, placeholders)
		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			return apperr.Wrap(apperr.Unavailable, "failed to prepare result insert", err)
		}
		defer stmt.Close()
		for _, row := range t.Rows {
			args := make([]any, len(t.Columns))
			for i := range t.Columns {
				if i < len(row) {
					args[i] = row[i]
				} else {
					args[i] = ""
				}
			}
			if _, err := stmt.Exec(args...); err != nil {
				return apperr.Wrap(apperr.Unavailable, "failed to insert result row", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to commit result table", err)
	}
	return nil
}

// ReadTable fetches a previously saved stage table, returning NotFound
// (mapped to 404 per spec.md §6) when it does not exist.
func (r *ResultStore) ReadTable(jobID, stage string) (Table, error) {
	name, err := tableName(jobID, stage)
	if err != nil {
		return Table{}, err
	}

	rows, err := r.db.Query(fmt.Sprintf(`SELECT * FROM "%s"`, name))
	if err != nil {
		return Table{}, apperr.New(apperr.NotFound, fmt.Sprintf("no results for job %s stage %s", jobID, stage))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, apperr.Wrap(apperr.Unavailable, "failed to read result columns", err)
	}

	t := Table{Columns: cols}
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, apperr.Wrap(apperr.Unavailable, "failed to scan result row", err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			row[i] = v.String
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return Table{}, apperr.New(apperr.NotFound, fmt.Sprintf("no results for job %s stage %s", jobID, stage))
	}
	return t, nil
}

// Close releases the underlying database handle.
func (r *ResultStore) Close() error { return r.db.Close() }
