package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/records"
)

type employersFilter struct {
	employers []string
	disabled  bool
	reason    string
}

// NewEmployers creates a filter that removes candidates currently employed
// by one of the listed companies. The list is extended by Config.Employers.
func NewEmployers(employers []string) Filter {
	return &employersFilter{employers: employers}
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *employersFilter) IsEnabled() bool { return !f.disabled }

func (f *employersFilter) Validate(cfg *Config) error {
	if cfg != nil {
		f.employers = records.Dedup(f.employers, cfg.Employers)
	}
	return nil
}

func (f *employersFilter) Apply(_ context.Context, deps Deps, c *records.Candidates) (*records.Candidates, Step, error) {
	initial := c.Len()
	if len(f.employers) == 0 {
		return c, Step{Initial: initial, Left: initial}, nil
	}

	excluded := c.Exclude(records.CandidateEmployerField, f.employers)
	if len(excluded) > 0 {
		deps.Logger.Info("excluding candidates by current employer",
			zap.Strings("excluded_employers", f.employers),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *employersFilter) Status() Status {
	details := map[string]string{}
	if len(f.employers) > 0 {
		details["employers"] = strings.Join(f.employers, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
