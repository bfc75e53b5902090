package ai

import (
	"context"

	"github.com/spigell/talent-match/internal/records"
)

// Assessment is the model's judgement of how well a candidate's skills fit a
// job, on a 0-100 scale.
type Assessment struct {
	Score  float64
	Reason string
	Raw    string
}

// SkillMatch converts the assessment into the form stored on a candidate.
func (a *Assessment) SkillMatch() *records.SkillMatch {
	if a == nil {
		return nil
	}
	return &records.SkillMatch{Score: a.Score, Reason: a.Reason}
}

type Evaluator interface {
	Evaluate(ctx context.Context, candidate *records.Candidate, job *records.Job) (*Assessment, error)
}
