package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/records"
)

const (
	ProviderGoogle = "google"
	ProviderProxy  = "proxy"

	DefaultGoogleBaseURL = "https://maps.googleapis.com"

	googleGeocodePath = "/maps/api/geocode/json"
	proxyGeocodePath  = "/get-geocode"

	defaultHTTPTimeout = 10 * time.Second
)

// Google resolves addresses with the Google Geocoding API.
type Google struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

func NewGoogle(baseURL, apiKey string, logger *zap.Logger) (*Google, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("google geocoding api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Accept", "application/json")

	return &Google{client: client, apiKey: apiKey, logger: logger}, nil
}

func (g *Google) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return records.Coordinates{}, &GeocodingError{Provider: ProviderGoogle, Err: ErrEmptyAddress}
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address": address,
			"key":     g.apiKey,
		}).
		Get(googleGeocodePath)
	if err != nil {
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderGoogle, Err: err}
	}

	if resp.IsError() {
		return records.Coordinates{}, &GeocodingError{
			Address:  address,
			Provider: ProviderGoogle,
			Status:   resp.Status(),
		}
	}

	body := resp.String()
	status := gjson.Get(body, "status").String()

	g.logger.Debug("geocoding response",
		zap.String("address", address),
		zap.String("status", status),
		zap.Int("results", int(gjson.Get(body, "results.#").Int())),
	)

	switch status {
	case "OK":
	case "ZERO_RESULTS":
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderGoogle, Status: status, Err: ErrNoResults}
	default:
		var cause error
		if msg := gjson.Get(body, "error_message").String(); msg != "" {
			cause = errors.New(msg)
		}
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderGoogle, Status: status, Err: cause}
	}

	location := gjson.Get(body, "results.0.geometry.location")
	if !location.Exists() {
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderGoogle, Status: status, Err: ErrNoResults}
	}

	return records.Coordinates{
		Lat: location.Get("lat").Float(),
		Lng: location.Get("lng").Float(),
	}, nil
}

// Proxy resolves addresses through the CRM backend's /get-geocode endpoint,
// which answers with a bare {"lat","lng"} object.
type Proxy struct {
	client *resty.Client
	logger *zap.Logger
}

func NewProxy(baseURL string, logger *zap.Logger) (*Proxy, error) {
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		return nil, errors.New("geocoding proxy base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Accept", "application/json")

	return &Proxy{client: client, logger: logger}, nil
}

func (p *Proxy) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return records.Coordinates{}, &GeocodingError{Provider: ProviderProxy, Err: ErrEmptyAddress}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		Get(proxyGeocodePath)
	if err != nil {
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderProxy, Err: err}
	}

	body := resp.String()
	if resp.IsError() {
		var cause error
		if msg := gjson.Get(body, "error").String(); msg != "" {
			cause = errors.New(msg)
		}
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderProxy, Status: resp.Status(), Err: cause}
	}

	lat, lng := gjson.Get(body, "lat"), gjson.Get(body, "lng")
	if !lat.Exists() || !lng.Exists() {
		return records.Coordinates{}, &GeocodingError{Address: address, Provider: ProviderProxy, Err: ErrNoResults}
	}

	p.logger.Debug("geocoding response",
		zap.String("address", address),
		zap.Float64("lat", lat.Float()),
		zap.Float64("lng", lng.Float()),
	)

	return records.Coordinates{Lat: lat.Float(), Lng: lng.Float()}, nil
}

// NewProvider builds the geocoder named by provider.
func NewProvider(provider, baseURL, apiKey string, logger *zap.Logger) (Geocoder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderGoogle:
		return NewGoogle(baseURL, apiKey, logger)
	case ProviderProxy:
		return NewProxy(baseURL, logger)
	default:
		return nil, fmt.Errorf("unsupported geocoding provider: %s", provider)
	}
}
