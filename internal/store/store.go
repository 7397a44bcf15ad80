package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is the stored header of one assessment run.
type Run struct {
	ID         string                   `json:"id" yaml:"id"`
	StartedAt  time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                `json:"finished_at" yaml:"finished_at"`
	Status     models.RunStatus         `json:"status" yaml:"status"`
	Message    string                   `json:"message" yaml:"message"`
	Region     string                   `json:"region" yaml:"region"`
	Summary    models.AssessmentSummary `json:"summary" yaml:"summary"`
}

// Store reads and writes run history.
type Store interface {
	// SaveRun writes res and replaces any findings stored for the same run id.
	SaveRun(ctx context.Context, res *models.AssessmentResult) error

	// ListRuns returns the newest runs first, at most limit (all when limit <= 0).
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetRun returns one run header or ErrNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// GetFindings returns the findings of a run in their original order.
	GetFindings(ctx context.Context, runID string) ([]models.Finding, error)
}

type defaultStore struct {
	db *sql.DB
}

// NewStore returns a Store backed by db, which must come from NewDB.
func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{db: db}, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func (s *defaultStore) SaveRun(ctx context.Context, res *models.AssessmentResult) error {
	if res == nil || res.RunID == "" {
		return fmt.Errorf("save run: run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := res.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, status, message, region,
			accounts, findings, pass_findings, warn_findings, fail_findings, assessment_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			message = excluded.message,
			accounts = excluded.accounts,
			findings = excluded.findings,
			pass_findings = excluded.pass_findings,
			warn_findings = excluded.warn_findings,
			fail_findings = excluded.fail_findings,
			assessment_errors = excluded.assessment_errors`,
		res.RunID, formatTime(res.StartedAt), formatTime(res.FinishedAt), string(res.Status), res.Message, res.Region,
		sum.TotalAccounts, sum.TotalFindings, sum.PassFindings, sum.WarnFindings, sum.FailFindings, sum.AssessmentErrors,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, res.RunID); err != nil {
		return fmt.Errorf("clear findings for run %s: %w", res.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, seq, account_id, account_name, check_name, status, messages, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range res.Findings {
		msgs, err := json.Marshal(f.Messages)
		if err != nil {
			return fmt.Errorf("encode messages: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, res.RunID, i, f.AccountID, f.AccountName, f.CheckName,
			string(f.Status), string(msgs), formatTime(f.Timestamp)); err != nil {
			return fmt.Errorf("insert finding %d for run %s: %w", i, res.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", res.RunID, err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, message, region,
	accounts, findings, pass_findings, warn_findings, fail_findings, assessment_errors`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		finishedNull      sql.NullString
		message, region   sql.NullString
		status            string
	)
	err := row.Scan(&r.ID, &started, &finishedNull, &status, &message, &region,
		&r.Summary.TotalAccounts, &r.Summary.TotalFindings, &r.Summary.PassFindings,
		&r.Summary.WarnFindings, &r.Summary.FailFindings, &r.Summary.AssessmentErrors)
	if err != nil {
		return Run{}, err
	}
	finished = finishedNull.String
	r.Status = models.RunStatus(status)
	r.Message = message.String
	r.Region = region.String
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return r, nil
}

func (s *defaultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	logger := zerolog.Ctx(ctx)

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close run rows")
		}
	}(rows)

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *defaultStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

func (s *defaultStore) GetFindings(ctx context.Context, runID string) ([]models.Finding, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, account_name, check_name, status, messages, timestamp
		FROM findings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query findings for run %s: %w", runID, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close finding rows")
		}
	}(rows)

	findings := []models.Finding{}
	for rows.Next() {
		var (
			f            models.Finding
			name         sql.NullString
			status, msgs string
			ts           string
		)
		if err := rows.Scan(&f.AccountID, &name, &f.CheckName, &status, &msgs, &ts); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.AccountName = name.String
		f.Status = models.Status(status)
		if err := json.Unmarshal([]byte(msgs), &f.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		if f.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
