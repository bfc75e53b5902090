package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/talent-match/internal/records"
)

// EarthRadiusKm is the mean earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

var (
	ErrNoResults    = errors.New("no results")
	ErrEmptyAddress = errors.New("address is empty")
)

// Geocoder resolves a free-text address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (records.Coordinates, error)
}

// GeocoderFunc adapts a plain function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, address string) (records.Coordinates, error)

func (f GeocoderFunc) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	return f(ctx, address)
}

// GeocodingError is returned whenever an address could not be resolved.
type GeocodingError struct {
	Address  string
	Provider string
	Status   string
	Err      error
}

func (e *GeocodingError) Error() string {
	var b strings.Builder
	b.WriteString("geocoding")
	if e.Provider != "" {
		b.WriteString(" via ")
		b.WriteString(e.Provider)
	}
	fmt.Fprintf(&b, " %q failed", e.Address)
	if e.Status != "" {
		b.WriteString(": status ")
		b.WriteString(e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// asGeocodingError makes sure err is reported as a *GeocodingError.
func asGeocodingError(address string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *GeocodingError
	if errors.As(err, &gerr) {
		return err
	}
	return &GeocodingError{Address: address, Err: err}
}

// IsGeocodingError reports whether err carries a *GeocodingError.
func IsGeocodingError(err error) bool {
	var gerr *GeocodingError
	return errors.As(err, &gerr)
}

// Resolve returns the coordinates of loc, asking g only for text locations.
func Resolve(ctx context.Context, g Geocoder, loc records.Location) (records.Coordinates, error) {
	if loc.Coordinates != nil {
		return *loc.Coordinates, nil
	}

	address := strings.TrimSpace(loc.Address)
	if address == "" {
		return records.Coordinates{}, &GeocodingError{Err: ErrEmptyAddress}
	}
	if g == nil {
		return records.Coordinates{}, &GeocodingError{Address: address, Err: errors.New("geocoder is not configured")}
	}

	coords, err := g.Geocode(ctx, address)
	if err != nil {
		return records.Coordinates{}, asGeocodingError(address, err)
	}
	return coords, nil
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b records.Coordinates) float64 {
	const toRad = math.Pi / 180

	dLat := (b.Lat - a.Lat) * toRad
	dLng := (b.Lng - a.Lng) * toRad
	lat1 := a.Lat * toRad
	lat2 := b.Lat * toRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

type breakpoint struct {
	maxKm float64
	score float64
}

// Upper bounds are inclusive.
var distanceBreakpoints = []breakpoint{
	{maxKm: 10, score: 10},
	{maxKm: 15, score: 9},
	{maxKm: 20, score: 8},
	{maxKm: 25, score: 7},
	{maxKm: 30, score: 6},
	{maxKm: 40, score: 5},
	{maxKm: 50, score: 2.5},
}

// DistanceScore maps a distance in kilometers onto the 0-10 location scale.
func DistanceScore(km float64) float64 {
	for _, bp := range distanceBreakpoints {
		if km <= bp.maxKm {
			return bp.score
		}
	}
	return 0
}
