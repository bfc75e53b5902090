// Package store keeps finished match runs in SQLite so they can be listed
// and reopened later. Stored scores are a cache of computed results; the
// candidate and job documents remain the source of truth.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/scoring"
)

//go:embed migrations/001_initial.sql
var initialMigration string

const DefaultListLimit = 50

type Store struct {
	*sql.DB
}

// Run is the summary of a stored batch.
type Run struct {
	ID         string          `json:"id"`
	JobID      string          `json:"jobId"`
	Filters    scoring.Filters `json:"filters"`
	Step       matching.Step   `json:"step"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.Exec(initialMigration)
	return err
}

func (s *Store) Health(ctx context.Context) error {
	return s.PingContext(ctx)
}

// SaveRun stores the report and its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, report *matching.Report) error {
	if report == nil || report.RunID == "" {
		return errors.New("report with a run id is required")
	}

	filters, err := json.Marshal(report.Filters)
	if err != nil {
		return err
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, job_id, filters, total, scored, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID, report.JobID, string(filters),
		report.Step.Total, report.Step.Scored, report.Step.Failed,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (
			run_id, position, candidate_id, candidate_name, effective_score,
			overall_score, failed, error, score, skill_match
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, result := range report.Results {
		if result == nil {
			continue
		}
		score, err := nullJSON(result.Score)
		if err != nil {
			return err
		}
		skill, err := nullJSON(result.SkillMatch)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			report.RunID, i, result.CandidateID, nullString(result.CandidateName),
			result.EffectiveScore, max(result.Overall(), 0), result.Failed,
			nullString(result.Error), score, skill,
		)
		if err != nil {
			return fmt.Errorf("inserting result %s of run %s: %w", result.CandidateID, report.RunID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. A non-empty jobID restricts
// the list to that job.
func (s *Store) ListRuns(ctx context.Context, jobID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, job_id, filters, total, scored, failed, started_at, finished_at
		FROM runs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads a stored run with its ranked results.
func (s *Store) GetRun(ctx context.Context, id string) (*matching.Report, error) {
	row := s.QueryRowContext(ctx, `
		SELECT id, job_id, filters, total, scored, failed, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	results, err := s.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}

	return &matching.Report{
		RunID:      run.ID,
		JobID:      run.JobID,
		Filters:    run.Filters,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Results:    results,
		Step:       run.Step,
	}, nil
}

// ListResults returns the results of a run in their ranked order.
func (s *Store) ListResults(ctx context.Context, runID string) ([]*matching.Result, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT candidate_id, candidate_name, effective_score, failed, error, score, skill_match
		FROM results WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*matching.Result{}
	for rows.Next() {
		var (
			result               matching.Result
			name, msg            sql.NullString
			scoreJSON, skillJSON sql.NullString
		)
		if err := rows.Scan(
			&result.CandidateID, &name, &result.EffectiveScore, &result.Failed,
			&msg, &scoreJSON, &skillJSON,
		); err != nil {
			return nil, err
		}

		result.CandidateName = name.String
		result.Error = msg.String
		if result.Failed && msg.Valid {
			result.Err = errors.New(msg.String)
		}
		if scoreJSON.Valid {
			result.Score = &scoring.MatchScore{}
			if err := json.Unmarshal([]byte(scoreJSON.String), result.Score); err != nil {
				return nil, fmt.Errorf("decoding score of %s: %w", result.CandidateID, err)
			}
		}
		if skillJSON.Valid {
			result.SkillMatch = &records.SkillMatch{}
			if err := json.Unmarshal([]byte(skillJSON.String), result.SkillMatch); err != nil {
				return nil, fmt.Errorf("decoding skill match of %s: %w", result.CandidateID, err)
			}
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run     Run
		filters string
	)
	if err := row.Scan(
		&run.ID, &run.JobID, &filters,
		&run.Step.Total, &run.Step.Scored, &run.Step.Failed,
		&run.StartedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filters), &run.Filters); err != nil {
		return nil, fmt.Errorf("decoding filters of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
