package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patchrun/patchrun/internal/models"
	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT 0,
		log_path TEXT,
		summary_path TEXT,
		runner_host TEXT,
		runner_platform TEXT,
		runner_uptime_seconds INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS host_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		host TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_host_results_run_id ON host_results(run_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// RecordRun persists a completed run and its per-host outcomes.
func (db *DB) RecordRun(r *models.RunReport) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (id, started_at, finished_at, dry_run, log_path, summary_path,
	                  runner_host, runner_platform, runner_uptime_seconds)
	                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.FinishedAt, r.DryRun, r.LogPath, r.SummaryPath,
		r.Runner.Hostname, r.Runner.Platform, r.Runner.UptimeSeconds)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	position := 0
	for _, bucket := range [][]models.HostOutcome{r.Succeeded, r.Skipped, r.Failed} {
		for _, o := range bucket {
			_, err := tx.Exec(`INSERT INTO host_results (run_id, position, host, status, reason)
			                   VALUES (?, ?, ?, ?, ?)`,
				r.ID, position, o.Host, string(o.Status), o.Reason)
			if err != nil {
				return fmt.Errorf("insert host result: %w", err)
			}
			position++
		}
	}

	return tx.Commit()
}

// RunSummary is one row of `patchrun history list`.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	RunnerHost string    `json:"runner_host"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	query := `SELECT r.id, r.started_at, r.finished_at, r.dry_run, r.runner_host,
	          SUM(CASE WHEN hr.status = 'succeeded' THEN 1 ELSE 0 END),
	          SUM(CASE WHEN hr.status = 'skipped' THEN 1 ELSE 0 END),
	          SUM(CASE WHEN hr.status = 'failed' THEN 1 ELSE 0 END)
	          FROM runs r
	          LEFT JOIN host_results hr ON hr.run_id = r.id
	          GROUP BY r.id
	          ORDER BY r.started_at DESC
	          LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var succeeded, skipped, failed sql.NullInt64
		err := rows.Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.DryRun, &s.RunnerHost,
			&succeeded, &skipped, &failed)
		if err != nil {
			return nil, err
		}
		s.Succeeded = int(succeeded.Int64)
		s.Skipped = int(skipped.Int64)
		s.Failed = int(failed.Int64)
		runs = append(runs, s)
	}

	return runs, rows.Err()
}

// GetRun reconstructs a stored run report, buckets in recorded order.
func (db *DB) GetRun(id string) (*models.RunReport, error) {
	r := &models.RunReport{}
	err := db.conn.QueryRow(`SELECT id, started_at, finished_at, dry_run, log_path, summary_path,
	                         runner_host, runner_platform, runner_uptime_seconds
	                         FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.LogPath, &r.SummaryPath,
			&r.Runner.Hostname, &r.Runner.Platform, &r.Runner.UptimeSeconds)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT host, status, reason FROM host_results
	                            WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o models.HostOutcome
		var status string
		if err := rows.Scan(&o.Host, &status, &o.Reason); err != nil {
			return nil, err
		}
		o.Status = models.Status(status)
		switch o.Status {
		case models.StatusSucceeded:
			r.Succeeded = append(r.Succeeded, o)
		case models.StatusSkipped:
			r.Skipped = append(r.Skipped, o)
		default:
			r.Failed = append(r.Failed, o)
		}
	}

	return r, rows.Err()
}

func (db *DB) Close() error {
	return db.conn.Close()
}
