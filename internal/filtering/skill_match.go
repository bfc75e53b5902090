package filtering

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-match/internal/ai"
	"github.com/spigell/talent-match/internal/records"
)

const defaultSkillMatchConcurrency = 4

type skillMatchFilter struct {
	enabled     bool
	reason      string
	config      *AIConfig
	assessments map[string]*ai.Assessment
}

// NewSkillMatch creates the step that attaches an LLM skill match to every
// candidate. It starts disabled unless cfg enables it.
func NewSkillMatch(cfg *AIConfig) Filter {
	f := &skillMatchFilter{config: cfg}
	if cfg != nil {
		f.enabled = cfg.Enabled
	}
	if !f.enabled {
		f.reason = "disabled in configuration"
	}
	return f
}

func (f *skillMatchFilter) Name() string { return "skill_match" }

func (f *skillMatchFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *skillMatchFilter) IsEnabled() bool { return f.enabled }

func (f *skillMatchFilter) Validate(cfg *Config) error {
	if f.config == nil && cfg != nil {
		f.config = cfg.AI
	}
	if f.config == nil {
		return fmt.Errorf("ai configuration is required when the skill match step is enabled")
	}
	if f.config.MinimumScore < 0 || f.config.MinimumScore > 100 {
		return fmt.Errorf("minimum score must be within 0..100, got %.2f", f.config.MinimumScore)
	}
	return nil
}

// Apply evaluates candidates concurrently. A failed evaluation is logged and
// the candidate is kept without a skill match.
func (f *skillMatchFilter) Apply(ctx context.Context, deps Deps, c *records.Candidates) (*records.Candidates, Step, error) {
	initial := c.Len()
	if deps.Evaluator == nil {
		deps.Logger.Info("ai evaluator is not configured; skipping skill_match step")
		return c, Step{Initial: initial, Left: initial}, nil
	}
	if deps.Job == nil {
		return c, Step{}, fmt.Errorf("job is required for skill match evaluation")
	}

	concurrency := f.config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSkillMatchConcurrency
	}

	var mu sync.Mutex
	assessments := make(map[string]*ai.Assessment, initial)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for _, candidate := range c.Items {
		if candidate.SkillMatch != nil && !f.config.Overwrite {
			continue
		}

		eg.Go(func() error {
			assessment, err := deps.Evaluator.Evaluate(egCtx, candidate, deps.Job)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				deps.Logger.Warn("skill match evaluation failed",
					zap.String("candidate_id", candidate.ID),
					zap.Error(err),
				)
				return nil
			}

			candidate.SkillMatch = assessment.SkillMatch()

			mu.Lock()
			assessments[candidate.ID] = assessment
			mu.Unlock()

			deps.Logger.Debug("skill match evaluated",
				zap.String("candidate_id", candidate.ID),
				zap.Float64("skill_score", assessment.Score),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return c, Step{}, err
	}

	f.assessments = assessments

	if f.config.MinimumScore > 0 {
		kept := make([]*records.Candidate, 0, initial)
		for _, candidate := range c.Items {
			if candidate.SkillMatch != nil && candidate.SkillMatch.Score < f.config.MinimumScore {
				deps.Logger.Info("candidate rejected by skill match",
					zap.String("candidate_id", candidate.ID),
					zap.Float64("skill_score", candidate.SkillMatch.Score),
					zap.String("reason", candidate.SkillMatch.Reason),
				)
				continue
			}
			kept = append(kept, candidate)
		}
		c.Items = kept
	}

	left := c.Len()
	return c, Step{Initial: initial, Dropped: initial - left, Left: left}, nil
}

func (f *skillMatchFilter) Assessments() map[string]*ai.Assessment {
	if f.assessments == nil {
		return map[string]*ai.Assessment{}
	}
	return f.assessments
}

func (f *skillMatchFilter) Status() Status {
	details := map[string]string{}
	if f.config != nil {
		details["minimum_score"] = fmt.Sprintf("%.2f", f.config.MinimumScore)
		details["concurrency"] = strconv.Itoa(f.config.Concurrency)
		details["overwrite"] = strconv.FormatBool(f.config.Overwrite)
		if f.config.Model != "" {
			details["model"] = f.config.Model
		}
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
