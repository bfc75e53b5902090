package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/records"
)

type excludeFileFilter struct {
	path     string
	disabled bool
	reason   string
}

// NewExcludeFile creates a filter that removes candidates listed in the
// exclude file at path. An empty path turns the step into a no-op.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludeFileFilter) IsEnabled() bool { return !f.disabled }

func (f *excludeFileFilter) Validate(*Config) error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, c *records.Candidates) (*records.Candidates, Step, error) {
	initial := c.Len()
	if f.path == "" {
		return c, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := records.LoadExcluded(f.path)
	if err != nil {
		return c, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	removed := c.Exclude(records.CandidateIDField, excluded.IDs())
	if len(removed) > 0 {
		deps.Logger.Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(removed), Left: c.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
