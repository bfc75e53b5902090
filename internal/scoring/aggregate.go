package scoring

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/registry"
)

// Aggregator combines the dimension scorers into a MatchScore. It holds no
// mutable state and may be shared between goroutines.
type Aggregator struct {
	geocoder     geo.Geocoder
	institutions *registry.InstitutionRegistry
	industries   *registry.IndustryRegistry
	logger       *zap.Logger
}

func NewAggregator(geocoder geo.Geocoder, regs *registry.Registries, logger *zap.Logger) (*Aggregator, error) {
	if regs == nil || regs.Institutions == nil || regs.Industries == nil {
		return nil, errors.New("institution and industry registries are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		geocoder:     geocoder,
		institutions: regs.Institutions,
		industries:   regs.Industries,
		logger:       logger,
	}, nil
}

// Aggregate scores candidate against job. Only a geocoding failure makes it
// fail; missing candidate data just scores as no match.
func (a *Aggregator) Aggregate(ctx context.Context, candidate *records.Candidate, job *records.Job, filters Filters) (*MatchScore, error) {
	if candidate == nil || job == nil {
		return nil, errors.New("candidate and job are required")
	}

	tags := MatchTags(TagsOf(candidate), job.JobTitleTags, job.ScoringTags())

	location, err := ScoreLocation(ctx, a.geocoder, job.Location, candidate.Location, filters.Location)
	if err != nil {
		return nil, fmt.Errorf("scoring location of candidate %s: %w", candidate.ID, err)
	}

	institution := ScoreInstitution(a.institutions, candidate.Education, filters.Institution)
	industry := ScoreIndustry(a.industries, candidate.Education, candidate.WorkExperience, job.Industry, filters.Industry)

	score := &MatchScore{
		TagScore:         tags,
		LocationScore:    location,
		InstitutionScore: institution,
		IndustryScore:    industry,
		SalaryScore:      DimensionScore{BaseScore: SalaryBaseScore, FinalScore: round(SalaryBaseScore * salaryScale)},
		WorkSetupScore:   DimensionScore{BaseScore: WorkSetupBaseScore, FinalScore: round(WorkSetupBaseScore * workSetupScale)},
		WorkShiftScore:   DimensionScore{BaseScore: WorkShiftBaseScore, FinalScore: round(WorkShiftBaseScore * workShiftScale)},
	}

	// Tag contributes its capped score, every other dimension its base score.
	overall := tags.CappedScore +
		location.BaseScore +
		institution.BaseScore +
		industry.BaseScore +
		score.SalaryScore.BaseScore +
		score.WorkSetupScore.BaseScore +
		score.WorkShiftScore.BaseScore
	score.OverallScore = DimensionScore{BaseScore: overall, FinalScore: round(overall)}

	a.logger.Debug("candidate scored",
		zap.String("candidate_id", candidate.ID),
		zap.String("job_id", job.ID),
		zap.Int("tag_score", tags.FinalScore),
		zap.Float64("distance_km", location.DistanceKm),
		zap.Int("overall_score", score.OverallScore.FinalScore),
	)

	return score, nil
}
