package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/ai"
	"github.com/spigell/talent-match/internal/records"
)

// Filter represents a single step applied to the candidate pool before
// scoring.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, c *records.Candidates) (*records.Candidates, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger    *zap.Logger
	Job       *records.Job
	Evaluator ai.Evaluator
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	Employers []string
	AI        *AIConfig
}

// AIConfig stores settings of the skill match step.
type AIConfig struct {
	Enabled bool
	// MinimumScore drops candidates whose skill match is below it. Zero
	// keeps every candidate.
	MinimumScore float64
	Concurrency  int
	// Overwrite re-evaluates candidates that already carry a skill match.
	Overwrite bool
	Model     string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns the remaining
// candidates together with the AI assessments collected on the way.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, c *records.Candidates) (*records.Candidates, map[string]*ai.Assessment, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	assessments := make(map[string]*ai.Assessment)
	for _, step := range steps {
		if !step.IsEnabled() {
			deps.Logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, c)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		c = next

		if collector, ok := step.(interface {
			Assessments() map[string]*ai.Assessment
		}); ok {
			for id, assessment := range collector.Assessments() {
				assessments[id] = assessment
			}
		}
	}

	return c, assessments, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
