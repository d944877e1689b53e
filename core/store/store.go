// Package store persists reports and job records in SQLite. Reports are
// immutable once inserted; the idempotency tuple is looked up before a
// compile, not enforced by a unique index, so duplicates from a race
// are possible and the oldest row wins on lookup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS knox_reports (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	policy_version TEXT NOT NULL,
	ruleset_hash TEXT NOT NULL,
	template_id TEXT NOT NULL,
	engine_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	manifest TEXT NOT NULL,
	gate_results TEXT NOT NULL,
	rendered_markdown TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	latency_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knox_reports_tuple
	ON knox_reports(project_id, policy_id, template_id, engine_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_knox_reports_project
	ON knox_reports(project_id, created_at);

CREATE TABLE IF NOT EXISTS knox_jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	project_id TEXT NOT NULL,
	report_id TEXT,
	error_code TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knox_jobs_project ON knox_jobs(project_id, created_at);
`

// ReportKey is the idempotency tuple.
type ReportKey struct {
	ProjectID   string
	PolicyID    string
	TemplateID  string
	EngineID    string
	Fingerprint string
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema. WAL keeps concurrent readers off the writers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertReport persists a report. Inserts are the only mutation on the
// reports table.
func (s *Store) InsertReport(ctx context.Context, report knox.Report) error {
	manifest, err := json.Marshal(report.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	gateResults, err := json.Marshal(report.GateResults)
	if err != nil {
		return fmt.Errorf("encode gate results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knox_reports (
			id, project_id, policy_id, policy_version, ruleset_hash,
			template_id, engine_id, fingerprint, manifest, gate_results,
			rendered_markdown, created_at, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.ProjectID, report.PolicyID, report.PolicyVersion, report.RulesetHash,
		report.TemplateID, report.EngineID, report.Fingerprint, string(manifest), string(gateResults),
		report.RenderedMarkdown, report.CreatedAt.UTC(), report.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// LookupReport returns the oldest report matching the idempotency tuple.
func (s *Store) LookupReport(ctx context.Context, key ReportKey) (*knox.Report, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, policy_id, policy_version, ruleset_hash,
		       template_id, engine_id, fingerprint, manifest, gate_results,
		       rendered_markdown, created_at, latency_ms
		FROM knox_reports
		WHERE project_id = ? AND policy_id = ? AND template_id = ? AND engine_id = ? AND fingerprint = ?
		ORDER BY created_at ASC
		LIMIT 1`,
		key.ProjectID, key.PolicyID, key.TemplateID, key.EngineID, key.Fingerprint,
	)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return report, true, nil
}

// GetReport fetches one report by id.
func (s *Store) GetReport(ctx context.Context, id string) (*knox.Report, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, policy_id, policy_version, ruleset_hash,
		       template_id, engine_id, fingerprint, manifest, gate_results,
		       rendered_markdown, created_at, latency_ms
		FROM knox_reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return report, true, nil
}

// ListReports returns a project's reports, newest first.
func (s *Store) ListReports(ctx context.Context, projectID string) ([]knox.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, policy_id, policy_version, ruleset_hash,
		       template_id, engine_id, fingerprint, manifest, gate_results,
		       rendered_markdown, created_at, latency_ms
		FROM knox_reports
		WHERE project_id = ?
		ORDER BY created_at DESC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []knox.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// DeleteProjectReports removes all reports for a project. This is the
// project-deletion cascade, not a report-level operation.
func (s *Store) DeleteProjectReports(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knox_reports WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete project reports: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*knox.Report, error) {
	var report knox.Report
	var manifest, gateResults string
	var createdAt time.Time
	err := row.Scan(
		&report.ID, &report.ProjectID, &report.PolicyID, &report.PolicyVersion, &report.RulesetHash,
		&report.TemplateID, &report.EngineID, &report.Fingerprint, &manifest, &gateResults,
		&report.RenderedMarkdown, &createdAt, &report.LatencyMS,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(manifest), &report.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := json.Unmarshal([]byte(gateResults), &report.GateResults); err != nil {
		return nil, fmt.Errorf("decode gate results: %w", err)
	}
	report.CreatedAt = createdAt.UTC()
	return &report, nil
}

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, job knox.JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knox_jobs (id, kind, status, project_id, report_id, error_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.Status, job.ProjectID, job.ReportID, job.ErrorCode,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus advances a job. ReportID and ErrorCode are metadata
// only; rendered text never lands in the jobs table.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status, reportID, errorCode string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knox_jobs SET status = ?, report_id = ?, error_code = ?, updated_at = ?
		WHERE id = ?`,
		status, reportID, errorCode, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("unknown job: %s", id)
	}
	return nil
}

// GetJob fetches one job record.
func (s *Store) GetJob(ctx context.Context, id string) (*knox.JobRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, project_id, COALESCE(report_id, ''), COALESCE(error_code, ''), created_at, updated_at
		FROM knox_jobs WHERE id = ?`, id)
	var job knox.JobRecord
	var createdAt, updatedAt time.Time
	err := row.Scan(&job.ID, &job.Kind, &job.Status, &job.ProjectID, &job.ReportID, &job.ErrorCode, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()
	return &job, true, nil
}
