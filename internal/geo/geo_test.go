package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/talent-match/internal/records"
)

var (
	telAviv   = records.Coordinates{Lat: 32.08, Lng: 34.78}
	jerusalem = records.Coordinates{Lat: 31.78, Lng: 35.22}
)

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(telAviv, telAviv), 1e-9)

	d := HaversineKm(telAviv, jerusalem)
	assert.InDelta(t, 53.5, d, 1.5)
	assert.InDelta(t, d, HaversineKm(jerusalem, telAviv), 1e-9)
}

func TestDistanceScoreBreakpoints(t *testing.T) {
	tests := []struct {
		km   float64
		want float64
	}{
		{0, 10},
		{5, 10},
		{10, 10},
		{10.01, 9},
		{12, 9},
		{15, 9},
		{20, 8},
		{22, 7},
		{25, 7},
		{30, 6},
		{35, 5},
		{40, 5},
		{45, 2.5},
		{50, 2.5},
		{50.5, 0},
		{100, 0},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, DistanceScore(tt.km), "distance %.2f", tt.km)
	}
}

func TestDistanceScoreIsNonIncreasing(t *testing.T) {
	prev := DistanceScore(0)
	for km := 0.0; km <= 120; km += 0.25 {
		score := DistanceScore(km)
		require.LessOrEqualf(t, score, prev, "score increased at %.2f km", km)
		prev = score
	}
}

func TestResolve(t *testing.T) {
	calls := 0
	g := GeocoderFunc(func(_ context.Context, address string) (records.Coordinates, error) {
		calls++
		if address == "Nowhere" {
			return records.Coordinates{}, ErrNoResults
		}
		return telAviv, nil
	})

	coords, err := Resolve(context.Background(), g, records.PointLocation(1, 2))
	require.NoError(t, err)
	assert.Equal(t, records.Coordinates{Lat: 1, Lng: 2}, coords)
	assert.Equal(t, 0, calls, "coordinates must not be geocoded")

	coords, err = Resolve(context.Background(), g, records.TextLocation(" Tel Aviv "))
	require.NoError(t, err)
	assert.Equal(t, telAviv, coords)

	_, err = Resolve(context.Background(), g, records.TextLocation("Nowhere"))
	require.Error(t, err)
	assert.True(t, IsGeocodingError(err))
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestGoogleGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, googleGeocodePath, r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("address") {
		case "Tel Aviv":
			w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":32.08,"lng":34.78}}}]}`))
		case "Atlantis":
			w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		default:
			w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`))
		}
	}))
	defer srv.Close()

	g, err := NewGoogle(srv.URL, "secret", nil)
	require.NoError(t, err)

	coords, err := g.Geocode(context.Background(), "Tel Aviv")
	require.NoError(t, err)
	assert.Equal(t, telAviv, coords)

	_, err = g.Geocode(context.Background(), "Atlantis")
	var gerr *GeocodingError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "ZERO_RESULTS", gerr.Status)
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = g.Geocode(context.Background(), "Denied")
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "REQUEST_DENIED", gerr.Status)
	assert.Contains(t, err.Error(), "API key is invalid")

	_, err = NewGoogle(srv.URL, " ", nil)
	assert.Error(t, err)
}

func TestProxyGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, proxyGeocodePath, r.URL.Path)
		if r.URL.Query().Get("address") == "Jerusalem" {
			w.Write([]byte(`{"lat":31.78,"lng":35.22}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream failed"}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderProxy, srv.URL, "", nil)
	require.NoError(t, err)

	coords, err := p.Geocode(context.Background(), "Jerusalem")
	require.NoError(t, err)
	assert.Equal(t, jerusalem, coords)

	_, err = p.Geocode(context.Background(), "Haifa")
	require.Error(t, err)
	assert.True(t, IsGeocodingError(err))
	assert.Contains(t, err.Error(), "upstream failed")

	_, err = NewProvider("bing", "", "", nil)
	assert.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	slow := GeocoderFunc(func(ctx context.Context, _ string) (records.Coordinates, error) {
		<-ctx.Done()
		return records.Coordinates{}, ctx.Err()
	})

	_, err := WithTimeout(slow, 10*time.Millisecond).Geocode(context.Background(), "Tel Aviv")

	var gerr *GeocodingError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, StatusTimeout, gerr.Status)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WithTimeout(slow, time.Minute).Geocode(ctx, "Tel Aviv")
	require.ErrorAs(t, err, &gerr)
	assert.NotEqual(t, StatusTimeout, gerr.Status)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRateLimitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	g := WithRateLimit(GeocoderFunc(func(context.Context, string) (records.Coordinates, error) {
		return telAviv, nil
	}), limiter)

	_, err := g.Geocode(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Geocode(ctx, "b")
	var gerr *GeocodingError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, StatusRateLimited, gerr.Status)
}

func TestCacheMemoizesSuccessOnly(t *testing.T) {
	var calls atomic.Int32
	upstream := GeocoderFunc(func(_ context.Context, address string) (records.Coordinates, error) {
		calls.Add(1)
		if address == "bad" {
			return records.Coordinates{}, errors.New("boom")
		}
		return jerusalem, nil
	})

	cache := NewCache(upstream, CacheOptions{}, nil)

	for _, address := range []string{"Jerusalem", " jerusalem ", "JERUSALEM"} {
		coords, err := cache.Geocode(context.Background(), address)
		require.NoError(t, err)
		assert.Equal(t, jerusalem, coords)
	}
	assert.Equal(t, int32(1), calls.Load())

	for i := 0; i < 2; i++ {
		_, err := cache.Geocode(context.Background(), "bad")
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())

	hits, misses := cache.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(3), misses)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	cache := NewCache(GeocoderFunc(func(context.Context, string) (records.Coordinates, error) {
		return telAviv, nil
	}), CacheOptions{MaxEntries: 2, TTL: time.Hour}, nil)

	for _, address := range []string{"a", "b", "c", "d"} {
		_, err := cache.Geocode(context.Background(), address)
		require.NoError(t, err)
	}

	count := 0
	cache.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.LessOrEqual(t, count, 2)
}

func TestCacheConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	cache := NewCache(GeocoderFunc(func(context.Context, string) (records.Coordinates, error) {
		calls.Add(1)
		<-release
		return telAviv, nil
	}), CacheOptions{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coords, err := cache.Geocode(context.Background(), "Tel Aviv")
			assert.NoError(t, err)
			assert.Equal(t, telAviv, coords)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCacheSharedLookupSurvivesCallerCancel(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	cache := NewCache(GeocoderFunc(func(ctx context.Context, _ string) (records.Coordinates, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return telAviv, nil
		case <-ctx.Done():
			return records.Coordinates{}, ctx.Err()
		}
	}), CacheOptions{}, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Geocode(firstCtx, "Tel Aviv")
		firstErr <- err
	}()
	<-started

	type result struct {
		coords records.Coordinates
		err    error
	}
	second := make(chan result, 1)
	go func() {
		coords, err := cache.Geocode(context.Background(), "Tel Aviv")
		second <- result{coords, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsGeocodingError(err))

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, telAviv, got.coords)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheSharedLookupIsBounded(t *testing.T) {
	cache := NewCache(GeocoderFunc(func(ctx context.Context, _ string) (records.Coordinates, error) {
		<-ctx.Done()
		return records.Coordinates{}, ctx.Err()
	}), CacheOptions{LookupTimeout: 20 * time.Millisecond}, nil)

	_, err := cache.Geocode(context.Background(), "Tel Aviv")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
