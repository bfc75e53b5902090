package scoring

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/records"
)

// ScoreLocation scores the distance between the job and the candidate.
// When disabled, or when either side has no location, the neutral score is
// returned without calling the geocoder. Text locations are resolved
// concurrently; a failed lookup is returned as a *geo.GeocodingError.
func ScoreLocation(ctx context.Context, g geo.Geocoder, jobLoc, candidateLoc records.Location, enabled bool) (LocationScore, error) {
	if !enabled || jobLoc.IsEmpty() || candidateLoc.IsEmpty() {
		return LocationScore{
			BaseScore:  NeutralDefaultScore,
			FinalScore: round(NeutralDefaultScore * locationScale),
		}, nil
	}

	var jobPoint, candidatePoint records.Coordinates

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		jobPoint, err = geo.Resolve(egCtx, g, jobLoc)
		return err
	})
	eg.Go(func() error {
		var err error
		candidatePoint, err = geo.Resolve(egCtx, g, candidateLoc)
		return err
	})
	if err := eg.Wait(); err != nil {
		return LocationScore{}, err
	}

	distance := geo.HaversineKm(jobPoint, candidatePoint)
	base := geo.DistanceScore(distance)

	return LocationScore{
		BaseScore:  base,
		DistanceKm: distance,
		FinalScore: round(base * locationScale),
	}, nil
}
