// Package matching scores a pool of candidates against one job and ranks
// the results.
package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/scoring"
)

const (
	DefaultConcurrency      = 8
	DefaultCandidateTimeout = 30 * time.Second
)

// Scorer computes the match score of a single candidate/job pair.
// *scoring.Aggregator satisfies it.
type Scorer interface {
	Aggregate(ctx context.Context, candidate *records.Candidate, job *records.Job, filters scoring.Filters) (*scoring.MatchScore, error)
}

type Options struct {
	Concurrency      int           `mapstructure:"concurrency"`
	CandidateTimeout time.Duration `mapstructure:"candidate-timeout"`
}

// Result holds the outcome for one candidate. Failed results carry the
// error and no score.
type Result struct {
	CandidateID    string              `json:"candidateId"`
	CandidateName  string              `json:"candidateName,omitempty"`
	Score          *scoring.MatchScore `json:"score,omitempty"`
	SkillMatch     *records.SkillMatch `json:"skillMatch,omitempty"`
	EffectiveScore int                 `json:"effectiveScore"`
	Failed         bool                `json:"failed"`
	Error          string              `json:"error,omitempty"`

	Err error `json:"-"`
}

// Overall returns the overall final score or -1 for failed results.
func (r *Result) Overall() int {
	if r == nil || r.Score == nil {
		return -1
	}
	return r.Score.OverallScore.FinalScore
}

type Step struct {
	Total  int `json:"total"`
	Scored int `json:"scored"`
	Failed int `json:"failed"`
}

type Report struct {
	RunID      string          `json:"runId"`
	JobID      string          `json:"jobId"`
	Filters    scoring.Filters `json:"filters"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Results    []*Result       `json:"results"`
	Step       Step            `json:"step"`
}

// Batch fans candidate scoring out over a bounded number of goroutines.
type Batch struct {
	scorer Scorer
	opts   Options
	logger *zap.Logger
}

func NewBatch(scorer Scorer, opts Options, log *zap.Logger) (*Batch, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = DefaultCandidateTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Batch{scorer: scorer, opts: opts, logger: log}, nil
}

// Run scores every candidate against job. A failing candidate is recorded
// in its Result and does not stop the batch. Cancelling ctx stops the batch
// and returns the context error.
func (b *Batch) Run(ctx context.Context, job *records.Job, candidates *records.Candidates, filters scoring.Filters) (*Report, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}

	report := &Report{
		RunID:     uuid.NewString(),
		JobID:     job.ID,
		Filters:   filters,
		StartedAt: time.Now().UTC(),
		Results:   make([]*Result, candidates.Len()),
	}

	var eg errgroup.Group
	eg.SetLimit(b.opts.Concurrency)

	for i, candidate := range candidatesOf(candidates) {
		if ctx.Err() != nil {
			break
		}

		eg.Go(func() error {
			report.Results[i] = b.score(ctx, report.RunID, job, candidate, filters)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", report.RunID, err)
	}

	report.FinishedAt = time.Now().UTC()
	report.Step.Total = len(report.Results)
	for _, result := range report.Results {
		if result.Failed {
			report.Step.Failed++
		} else {
			report.Step.Scored++
		}
	}
	Rank(report.Results)

	b.logger.Info("batch finished",
		zap.String(logger.FieldRunID, report.RunID),
		zap.String(logger.FieldJobID, job.ID),
		zap.Int("total", report.Step.Total),
		zap.Int("scored", report.Step.Scored),
		zap.Int("failed", report.Step.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

func (b *Batch) score(ctx context.Context, runID string, job *records.Job, candidate *records.Candidate, filters scoring.Filters) *Result {
	ctx, cancel := context.WithTimeout(ctx, b.opts.CandidateTimeout)
	defer cancel()

	result := &Result{
		CandidateID:   candidate.ID,
		CandidateName: candidate.Name,
		SkillMatch:    candidate.SkillMatch,
	}

	score, err := b.scorer.Aggregate(ctx, candidate, job, filters)
	if err != nil {
		logger.ForMatch(b.logger, runID, job.ID, candidate.ID).Warn("candidate scoring failed", zap.Error(err))
		result.Failed = true
		result.Err = err
		result.Error = err.Error()
		return result
	}

	result.Score = score
	result.EffectiveScore = scoring.EffectiveScore(score, candidate.SkillMatch)
	return result
}

// Rank orders results by effective score, then overall score, both
// descending. Failed results go last. Ties keep their input order.
func Rank(results []*Result) {
	slices.SortStableFunc(results, func(a, b *Result) int {
		if a.Failed != b.Failed {
			if a.Failed {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.EffectiveScore, a.EffectiveScore); c != 0 {
			return c
		}
		return cmp.Compare(b.Overall(), a.Overall())
	})
}

func candidatesOf(c *records.Candidates) []*records.Candidate {
	if c == nil {
		return nil
	}
	return c.Items
}

// Detail is the full breakdown of one candidate/job pair.
type Detail struct {
	CandidateID    string              `json:"candidateId"`
	JobID          string              `json:"jobId"`
	Filters        scoring.Filters     `json:"filters"`
	Score          *scoring.MatchScore `json:"score"`
	SkillMatch     *records.SkillMatch `json:"skillMatch,omitempty"`
	EffectiveScore int                 `json:"effectiveScore"`
}

// Single scores one candidate. Unlike Run it returns the scoring error.
func Single(ctx context.Context, scorer Scorer, candidate *records.Candidate, job *records.Job, filters scoring.Filters) (*Detail, error) {
	if candidate == nil || job == nil {
		return nil, errors.New("candidate and job are required")
	}

	score, err := scorer.Aggregate(ctx, candidate, job, filters)
	if err != nil {
		return nil, err
	}

	return &Detail{
		CandidateID:    candidate.ID,
		JobID:          job.ID,
		Filters:        filters,
		Score:          score,
		SkillMatch:     candidate.SkillMatch,
		EffectiveScore: scoring.EffectiveScore(score, candidate.SkillMatch),
	}, nil
}
