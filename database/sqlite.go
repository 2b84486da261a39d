package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer at a time; the API and scheduler share this handle
	db.SetMaxOpenConns(1)

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			triggered_by TEXT NOT NULL DEFAULT 'cli',
			camera TEXT NOT NULL,
			date TEXT NOT NULL,
			window_start TIMESTAMP NOT NULL,
			window_end TIMESTAMP NOT NULL,
			chunk_length INTEGER NOT NULL,
			reencode BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			source_count INTEGER DEFAULT 0,
			dropped_sources INTEGER DEFAULT 0,
			chunks_planned INTEGER DEFAULT 0,
			chunks_written INTEGER DEFAULT 0,
			duration REAL DEFAULT 0,
			output_folder TEXT,
			manifest_path TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS run_outputs (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			file TEXT NOT NULL,
			path TEXT NOT NULL,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			size INTEGER DEFAULT 0,
			r2_key TEXT,
			r2_url TEXT,
			PRIMARY KEY (run_id, file)
		)
	`)
	if err != nil {
		return err
	}

	// Create index on status
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_camera_date ON runs (camera, date)`)
	return err
}

const runColumns = `
	id, triggered_by, camera, date, window_start, window_end, chunk_length, reencode,
	status, created_at, finished_at, source_count, dropped_sources,
	chunks_planned, chunks_written, duration, output_folder, manifest_path, error_message`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var finishedAt sql.NullTime
	var outputFolder, manifestPath, errorMessage sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Trigger,
		&run.Camera,
		&run.Date,
		&run.WindowStart,
		&run.WindowEnd,
		&run.ChunkLength,
		&run.Reencode,
		&run.Status,
		&run.CreatedAt,
		&finishedAt,
		&run.SourceCount,
		&run.DroppedSources,
		&run.ChunksPlanned,
		&run.ChunksWritten,
		&run.Duration,
		&outputFolder,
		&manifestPath,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	// Convert SQL nullable types to Go types
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.OutputFolder = outputFolder.String
	run.ManifestPath = manifestPath.String
	run.ErrorMessage = errorMessage.String

	return &run, nil
}

// CreateRun inserts a new run record into the database
func (s *SQLiteDB) CreateRun(run Run) error {
	_, err := s.db.Exec(`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Trigger,
		run.Camera,
		run.Date,
		run.WindowStart,
		run.WindowEnd,
		run.ChunkLength,
		run.Reencode,
		run.Status,
		run.CreatedAt,
		run.FinishedAt,
		run.SourceCount,
		run.DroppedSources,
		run.ChunksPlanned,
		run.ChunksWritten,
		run.Duration,
		run.OutputFolder,
		run.ManifestPath,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its ID. A missing run returns nil, nil.
func (s *SQLiteDB) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRun updates an existing run record
func (s *SQLiteDB) UpdateRun(run Run) error {
	_, err := s.db.Exec(`
		UPDATE runs
		SET
			status = ?,
			finished_at = ?,
			source_count = ?,
			dropped_sources = ?,
			chunks_planned = ?,
			chunks_written = ?,
			duration = ?,
			output_folder = ?,
			manifest_path = ?,
			error_message = ?
		WHERE id = ?
	`,
		run.Status,
		run.FinishedAt,
		run.SourceCount,
		run.DroppedSources,
		run.ChunksPlanned,
		run.ChunksWritten,
		run.Duration,
		run.OutputFolder,
		run.ManifestPath,
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// ListRuns retrieves runs, newest first, with pagination
func (s *SQLiteDB) ListRuns(limit, offset int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return collectRuns(rows)
}

// GetRunsByStatus retrieves runs with a specific status
func (s *SQLiteDB) GetRunsByStatus(status RunStatus, limit, offset int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs by status: %w", err)
	}
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its outputs
func (s *SQLiteDB) DeleteRun(id string) error {
	if _, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// UpdateRunStatus updates the status and optional error message of a run
func (s *SQLiteDB) UpdateRunStatus(id string, status RunStatus, errorMsg string) error {
	var finishedAt *time.Time

	// Terminal statuses stamp finished_at
	if status != StatusProcessing {
		now := time.Now()
		finishedAt = &now
	}

	_, err := s.db.Exec(`
		UPDATE runs
		SET
			status = ?,
			error_message = ?,
			finished_at = ?
		WHERE id = ?
	`, status, errorMsg, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	log.Printf("Updated run %s status to %s", id, status)
	return nil
}

// AddRunOutput records a file produced by a run. Re-adding the same file replaces it.
func (s *SQLiteDB) AddRunOutput(output RunOutput) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO run_outputs (
			run_id, kind, file, path, start_time, end_time, size, r2_key, r2_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		output.RunID,
		output.Kind,
		output.File,
		output.Path,
		output.StartTime,
		output.EndTime,
		output.Size,
		output.R2Key,
		output.R2URL,
	)
	if err != nil {
		return fmt.Errorf("failed to add run output: %w", err)
	}
	return nil
}

// GetRunOutputs retrieves the outputs of a run: combined clip, chunks in time order, then the manifest.
func (s *SQLiteDB) GetRunOutputs(runID string) ([]RunOutput, error) {
	rows, err := s.db.Query(`
		SELECT run_id, kind, file, path, start_time, end_time, size, r2_key, r2_url
		FROM run_outputs
		WHERE run_id = ?
		ORDER BY
			CASE kind WHEN 'combined' THEN 0 WHEN 'chunk' THEN 1 ELSE 2 END,
			start_time, file
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run outputs: %w", err)
	}
	defer rows.Close()

	var outputs []RunOutput
	for rows.Next() {
		var out RunOutput
		var startTime, endTime sql.NullTime
		var r2Key, r2URL sql.NullString

		if err := rows.Scan(
			&out.RunID,
			&out.Kind,
			&out.File,
			&out.Path,
			&startTime,
			&endTime,
			&out.Size,
			&r2Key,
			&r2URL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan output row: %w", err)
		}

		if startTime.Valid {
			out.StartTime = &startTime.Time
		}
		if endTime.Valid {
			out.EndTime = &endTime.Time
		}
		out.R2Key = r2Key.String
		out.R2URL = r2URL.String

		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return outputs, nil
}

// UpdateOutputR2 records where an output was uploaded
func (s *SQLiteDB) UpdateOutputR2(runID, file, key, url string) error {
	res, err := s.db.Exec(`
		UPDATE run_outputs
		SET r2_key = ?, r2_url = ?
		WHERE run_id = ? AND file = ?
	`, key, url, runID, file)
	if err != nil {
		return fmt.Errorf("failed to update output R2 location: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no output %s for run %s", file, runID)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
