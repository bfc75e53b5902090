package matching

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/registry"
	"github.com/spigell/talent-match/internal/scoring"
)

type scorerFunc func(ctx context.Context, candidate *records.Candidate, job *records.Job, filters scoring.Filters) (*scoring.MatchScore, error)

func (f scorerFunc) Aggregate(ctx context.Context, candidate *records.Candidate, job *records.Job, filters scoring.Filters) (*scoring.MatchScore, error) {
	return f(ctx, candidate, job, filters)
}

func scoreOf(tag, overall int) *scoring.MatchScore {
	return &scoring.MatchScore{
		TagScore:     scoring.TagScore{FinalScore: tag},
		OverallScore: scoring.DimensionScore{FinalScore: overall},
	}
}

func candidates(ids ...string) *records.Candidates {
	c := &records.Candidates{}
	for _, id := range ids {
		c.Items = append(c.Items, &records.Candidate{ID: id})
	}
	return c
}

func TestBatchRanksAndIsolatesFailures(t *testing.T) {
	scores := map[string]*scoring.MatchScore{
		"a": scoreOf(20, 60),
		"b": scoreOf(80, 70),
		"d": scoreOf(20, 75),
	}
	scorer := scorerFunc(func(_ context.Context, c *records.Candidate, _ *records.Job, _ scoring.Filters) (*scoring.MatchScore, error) {
		if c.ID == "c" {
			return nil, &geo.GeocodingError{Address: "nowhere", Err: geo.ErrNoResults}
		}
		return scores[c.ID], nil
	})

	batch, err := NewBatch(scorer, Options{Concurrency: 2}, zap.NewNop())
	require.NoError(t, err)

	pool := candidates("a", "b", "c", "d")
	pool.Items[0].SkillMatch = &records.SkillMatch{Score: 89.5}

	report, err := batch.Run(context.Background(), &records.Job{ID: "j1"}, pool, scoring.Filters{Location: true})
	require.NoError(t, err)

	ids := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		ids = append(ids, r.CandidateID)
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)

	assert.Equal(t, 90, report.Results[0].EffectiveScore)
	assert.True(t, report.Results[3].Failed)
	assert.True(t, geo.IsGeocodingError(report.Results[3].Err))
	assert.NotEmpty(t, report.Results[3].Error)
	assert.Nil(t, report.Results[3].Score)

	assert.Equal(t, Step{Total: 4, Scored: 3, Failed: 1}, report.Step)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "j1", report.JobID)
	assert.True(t, report.Filters.Location)
}

func TestBatchRespectsConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	scorer := scorerFunc(func(context.Context, *records.Candidate, *records.Job, scoring.Filters) (*scoring.MatchScore, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return scoreOf(0, 0), nil
	})

	batch, err := NewBatch(scorer, Options{Concurrency: 3}, nil)
	require.NoError(t, err)

	report, err := batch.Run(context.Background(), &records.Job{ID: "j"}, candidates("1", "2", "3", "4", "5", "6", "7", "8"), scoring.Filters{})
	require.NoError(t, err)
	assert.Len(t, report.Results, 8)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchCandidateTimeout(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, c *records.Candidate, _ *records.Job, _ scoring.Filters) (*scoring.MatchScore, error) {
		if c.ID == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return scoreOf(10, 10), nil
	})

	batch, err := NewBatch(scorer, Options{CandidateTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	report, err := batch.Run(context.Background(), &records.Job{ID: "j"}, candidates("slow", "fast"), scoring.Filters{})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "fast", report.Results[0].CandidateID)
	assert.True(t, report.Results[1].Failed)
	assert.ErrorIs(t, report.Results[1].Err, context.DeadlineExceeded)
}

func TestBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scorer := scorerFunc(func(context.Context, *records.Candidate, *records.Job, scoring.Filters) (*scoring.MatchScore, error) {
		cancel()
		return scoreOf(0, 0), nil
	})

	batch, err := NewBatch(scorer, Options{Concurrency: 1}, nil)
	require.NoError(t, err)

	_, err = batch.Run(ctx, &records.Job{ID: "j"}, candidates("a", "b", "c"), scoring.Filters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBatchRequiresJob(t *testing.T) {
	batch, err := NewBatch(scorerFunc(nil), Options{}, nil)
	require.NoError(t, err)

	_, err = batch.Run(context.Background(), nil, candidates("a"), scoring.Filters{})
	assert.Error(t, err)
}

func TestBatchWithAggregator(t *testing.T) {
	regs, err := registry.Default()
	require.NoError(t, err)
	aggregator, err := scoring.NewAggregator(nil, regs, nil)
	require.NoError(t, err)

	batch, err := NewBatch(aggregator, Options{}, nil)
	require.NoError(t, err)

	job := &records.Job{ID: "j", JobTitleTags: []string{"frontend"}, MandatoryTags: []string{"react"}}
	pool := &records.Candidates{Items: []*records.Candidate{
		{ID: "none"},
		{ID: "full", JobTitleTags: []string{"frontend"}, Skills: []string{"react"}},
	}}

	report, err := batch.Run(context.Background(), job, pool, scoring.Filters{})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "full", report.Results[0].CandidateID)
	assert.Greater(t, report.Results[0].EffectiveScore, report.Results[1].EffectiveScore)
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	results := []*Result{
		{CandidateID: "x", Score: scoreOf(10, 50), EffectiveScore: 10},
		{CandidateID: "y", Score: scoreOf(10, 50), EffectiveScore: 10},
		{CandidateID: "z", Score: scoreOf(10, 60), EffectiveScore: 10},
	}
	Rank(results)
	assert.Equal(t, "z", results[0].CandidateID)
	assert.Equal(t, "x", results[1].CandidateID)
	assert.Equal(t, "y", results[2].CandidateID)
}

func TestSingle(t *testing.T) {
	scorer := scorerFunc(func(context.Context, *records.Candidate, *records.Job, scoring.Filters) (*scoring.MatchScore, error) {
		return scoreOf(40, 70), nil
	})

	candidate := &records.Candidate{ID: "c", SkillMatch: &records.SkillMatch{Score: 12}}
	detail, err := Single(context.Background(), scorer, candidate, &records.Job{ID: "j"}, scoring.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 40, detail.EffectiveScore)
	assert.Equal(t, "j", detail.JobID)

	failing := scorerFunc(func(context.Context, *records.Candidate, *records.Job, scoring.Filters) (*scoring.MatchScore, error) {
		return nil, errors.New("boom")
	})
	_, err = Single(context.Background(), failing, candidate, &records.Job{ID: "j"}, scoring.Filters{})
	assert.Error(t, err)
}
