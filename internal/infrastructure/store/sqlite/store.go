// Package sqlite persists run reports in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	_ "modernc.org/sqlite"
)

var _ output.RunStore = (*Store)(nil)

// Schema for the run tables. Records with page_index 0 are the
// consolidated run records.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	goal TEXT NOT NULL,
	pages_processed INTEGER NOT NULL,
	stopped_reason TEXT NOT NULL,
	plan TEXT,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	page_index INTEGER NOT NULL,
	url TEXT NOT NULL,
	source TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (run_id, page_index)
);
CREATE TABLE IF NOT EXISTS records (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	page_index INTEGER NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	context TEXT,
	PRIMARY KEY (run_id, page_index, position)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun replaces any stored run with the same id.
func (s *Store) SaveRun(ctx context.Context, r *entity.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "pages", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", r.RunID); err != nil {
			return fmt.Errorf("delete previous %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, url, goal, pages_processed, stopped_reason, plan, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.URL, r.Goal, r.PagesProcessed, string(r.StoppedReason),
		nullable(r.Plan), nullable(r.Error),
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (run_id, page_index, url, source, fingerprint) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare pages: %w", err)
	}
	defer pageStmt.Close()

	recStmt, err := tx.PrepareContext(ctx, `INSERT INTO records (run_id, page_index, position, name, context) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	insertRecords := func(pageIndex int, records []entity.ExtractionRecord) error {
		for i, rec := range records {
			var ctxVal any
			if rec.Context != nil {
				ctxVal = *rec.Context
			}
			if _, err := recStmt.ExecContext(ctx, r.RunID, pageIndex, i, rec.Name, ctxVal); err != nil {
				return fmt.Errorf("insert record: %w", err)
			}
		}
		return nil
	}

	for _, p := range r.Pages {
		if _, err := pageStmt.ExecContext(ctx, r.RunID, p.PageIndex, p.URL, string(p.Source), p.ContentFingerprint); err != nil {
			return fmt.Errorf("insert page: %w", err)
		}
		if err := insertRecords(p.PageIndex, p.Records); err != nil {
			return err
		}
	}
	if err := insertRecords(0, r.Records); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetRun(ctx context.Context, runID string) (*entity.RunReport, error) {
	r := &entity.RunReport{RunID: runID}
	var (
		reason            string
		plan, errText     sql.NullString
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT url, goal, pages_processed, stopped_reason, plan, error, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.URL, &r.Goal, &r.PagesProcessed, &reason, &plan, &errText, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, output.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}
	r.StoppedReason = entity.StopReason(reason)
	r.Plan = plan.String
	r.Error = errText.String
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)

	rows, err := s.db.QueryContext(ctx, `SELECT page_index, url, source, fingerprint FROM pages WHERE run_id = ? ORDER BY page_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	for rows.Next() {
		var p entity.PageResult
		var source string
		if err := rows.Scan(&p.PageIndex, &p.URL, &source, &p.ContentFingerprint); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.Source = entity.ExtractionSource(source)
		r.Pages = append(r.Pages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	byPage := make(map[int][]entity.ExtractionRecord)
	rows, err = s.db.QueryContext(ctx, `SELECT page_index, name, context FROM records WHERE run_id = ? ORDER BY page_index, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pageIndex int
			rec       entity.ExtractionRecord
			ctxVal    sql.NullString
		)
		if err := rows.Scan(&pageIndex, &rec.Name, &ctxVal); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if ctxVal.Valid {
			v := ctxVal.String
			rec.Context = &v
		}
		byPage[pageIndex] = append(byPage[pageIndex], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	r.Records = byPage[0]
	for i := range r.Pages {
		r.Pages[i].Records = byPage[r.Pages[i].PageIndex]
	}
	return r, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
