package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// RunSummary is one finished pipeline run as recorded in the history store.
type RunSummary struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      string
	StepsRun     int
	StepsSkipped int
}

// Store persists run summaries in a SQLite database next to the state file,
// giving `sitepress history` something to report across invocations.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL,
	outcome       TEXT NOT NULL,
	steps_run     INTEGER NOT NULL,
	steps_skipped INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at DESC);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryState, builderr.SeverityError,
			"opening history database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, builderr.Wrap(err, builderr.CategoryState, builderr.SeverityError,
			"initializing history schema")
	}
	return &Store{db: db}, nil
}

// RecordRun inserts a finished run. Duplicate run IDs are rejected by the
// primary key.
func (s *Store) RecordRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, outcome, steps_run, steps_skipped)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Outcome, run.StepsRun, run.StepsSkipped)
	if err != nil {
		return builderr.Wrap(err, builderr.CategoryState, builderr.SeverityError,
			"recording run")
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, outcome, steps_run, steps_skipped
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryState, builderr.SeverityError,
			"querying run history")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Outcome, &r.StepsRun, &r.StepsSkipped); err != nil {
			return nil, builderr.Wrap(err, builderr.CategoryState, builderr.SeverityError,
				"scanning run history")
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
