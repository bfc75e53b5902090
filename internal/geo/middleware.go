package geo

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/spigell/talent-match/internal/records"
)

const (
	StatusTimeout     = "TIMEOUT"
	StatusRateLimited = "RATE_LIMITED"
)

type timeoutGeocoder struct {
	next    Geocoder
	timeout time.Duration
}

// WithTimeout bounds every lookup of next. Running out of time is reported
// as a GeocodingError with the TIMEOUT status. A non-positive timeout
// returns next unchanged.
func WithTimeout(next Geocoder, timeout time.Duration) Geocoder {
	if timeout <= 0 {
		return next
	}
	return &timeoutGeocoder{next: next, timeout: timeout}
}

func (t *timeoutGeocoder) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	coords, err := t.next.Geocode(ctx, address)
	if err == nil {
		return coords, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return records.Coordinates{}, &GeocodingError{
			Address: address,
			Status:  StatusTimeout,
			Err:     context.DeadlineExceeded,
		}
	}
	return records.Coordinates{}, asGeocodingError(address, err)
}

type rateLimitedGeocoder struct {
	next    Geocoder
	limiter *rate.Limiter
}

// NewLimiter builds a token bucket allowing perSecond lookups. A
// non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// WithRateLimit makes every lookup wait for a limiter token first.
func WithRateLimit(next Geocoder, limiter *rate.Limiter) Geocoder {
	if limiter == nil {
		return next
	}
	return &rateLimitedGeocoder{next: next, limiter: limiter}
}

func (r *rateLimitedGeocoder) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return records.Coordinates{}, &GeocodingError{Address: address, Status: StatusRateLimited, Err: err}
	}
	return r.next.Geocode(ctx, address)
}
