package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/scoring"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(runID, jobID string, started time.Time) *matching.Report {
	return &matching.Report{
		RunID:      runID,
		JobID:      jobID,
		Filters:    scoring.Filters{Location: true, Industry: true},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Results: []*matching.Result{
			{
				CandidateID:    "c1",
				CandidateName:  "Dana",
				EffectiveScore: 88,
				SkillMatch:     &records.SkillMatch{Score: 88, Reason: "strong"},
				Score: &scoring.MatchScore{
					TagScore:     scoring.TagScore{BaseScore: 36, CappedScore: 36, FinalScore: 72, MatchedTags: []string{"react"}},
					OverallScore: scoring.DimensionScore{BaseScore: 91, FinalScore: 91},
				},
			},
			{
				CandidateID: "c2",
				Failed:      true,
				Error:       "geocoding \"nowhere\": no results",
			},
		},
		Step: matching.Step{Total: 2, Scored: 1, Failed: 1},
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	s := setupTestStore(t)

	for _, table := range []string{"runs", "results"} {
		var count int
		err := s.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query tables: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.SaveRun(ctx, sampleReport("run-1", "job-1", started)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	report, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if report.JobID != "job-1" || !report.Filters.Location || report.Filters.Institution {
		t.Fatalf("unexpected run %+v", report)
	}
	if !report.StartedAt.Equal(started) {
		t.Fatalf("expected start %v, got %v", started, report.StartedAt)
	}
	if report.Step != (matching.Step{Total: 2, Scored: 1, Failed: 1}) {
		t.Fatalf("unexpected step %+v", report.Step)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}

	first := report.Results[0]
	if first.CandidateID != "c1" || first.Score == nil || first.Score.OverallScore.FinalScore != 91 {
		t.Fatalf("unexpected first result %+v", first)
	}
	if got := first.Score.TagScore.MatchedTags; len(got) != 1 || got[0] != "react" {
		t.Fatalf("unexpected matched tags %v", got)
	}
	if first.SkillMatch == nil || first.SkillMatch.Reason != "strong" {
		t.Fatalf("unexpected skill match %+v", first.SkillMatch)
	}

	second := report.Results[1]
	if !second.Failed || second.Score != nil || second.Err == nil {
		t.Fatalf("unexpected failed result %+v", second)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reports := []*matching.Report{
		sampleReport("run-1", "job-1", base),
		sampleReport("run-2", "job-2", base.Add(time.Hour)),
		sampleReport("run-3", "job-1", base.Add(2*time.Hour)),
	}
	for _, r := range reports {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-3" || runs[2].ID != "run-1" {
		t.Fatalf("unexpected order %+v", runs)
	}

	runs, err = s.ListRuns(ctx, "job-1", 1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-3" {
		t.Fatalf("unexpected filtered runs %+v", runs)
	}
}

func TestSaveRunDuplicateID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-1", "job-1", time.Now().UTC())
	if err := s.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveRun(ctx, report); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}

	results, err := s.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("failed save must not add results, got %d", len(results))
	}
}

func TestSaveRunRequiresID(t *testing.T) {
	s := setupTestStore(t)
	if err := s.SaveRun(context.Background(), &matching.Report{}); err == nil {
		t.Fatalf("expected error for report without id")
	}
}
