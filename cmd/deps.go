package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/ai"
	"github.com/spigell/talent-match/internal/ai/gemini"
	"github.com/spigell/talent-match/internal/filtering"
	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/registry"
	"github.com/spigell/talent-match/internal/scoring"
	"github.com/spigell/talent-match/internal/secrets"
)

// newGeocoder builds the lookup chain cache -> timeout -> rate limit ->
// provider. The returned close function releases the redis connection.
func newGeocoder(ctx context.Context, cfg *GeocodingConfig, log *zap.Logger) (geo.Geocoder, func(), error) {
	noop := func() {}
	if cfg == nil {
		cfg = &GeocodingConfig{}
	}

	apiKey, err := secrets.Optional(secrets.Source{
		Name: "geocoding api key",
		File: cfg.APIKeyFile,
		Env:  "TALENT_MATCH_GEOCODING_KEY",
	})
	if err != nil {
		return nil, noop, err
	}

	providerLog := logger.WithFields(log, logger.ProviderFields(cfg.Provider, "")...)
	provider, err := geo.NewProvider(cfg.Provider, cfg.BaseURL, apiKey, providerLog)
	if err != nil {
		return nil, noop, fmt.Errorf("%w (set geocoding.api-key-file or TALENT_MATCH_GEOCODING_KEY_FILE)", err)
	}

	chain := geo.WithRateLimit(provider, geo.NewLimiter(cfg.RateLimit, cfg.Burst))
	chain = geo.WithTimeout(chain, cfg.Timeout)

	opts := geo.CacheOptions{LookupTimeout: cfg.Timeout}
	closeFn := noop
	if cfg.Cache != nil {
		opts.TTL = cfg.Cache.TTL
		opts.MaxEntries = cfg.Cache.MaxEntries
		if cfg.Cache.RedisURL != "" {
			rdb, err := geo.NewRedisClient(ctx, cfg.Cache.RedisURL)
			if err != nil {
				// The in-memory tier still works without redis.
				log.Warn("geocoding cache runs without redis", zap.Error(err))
			} else {
				opts.Redis = rdb
				closeFn = func() { rdb.Close() }
			}
		}
	}

	return geo.NewCache(chain, opts, providerLog), closeFn, nil
}

func newRegistries(cfg *RegistriesConfig) (*registry.Registries, error) {
	if cfg == nil {
		return registry.Default()
	}
	return registry.Load(cfg.InstitutionsFile, cfg.IndustriesFile)
}

// newAggregator builds the scorer. The geocoder is only created when the
// location filter is on.
func newAggregator(ctx context.Context, config *Config, log *zap.Logger) (*scoring.Aggregator, func(), error) {
	regs, err := newRegistries(config.Registries)
	if err != nil {
		return nil, func() {}, fmt.Errorf("loading registries: %w", err)
	}

	var geocoder geo.Geocoder
	closeFn := func() {}
	if config.Filters.Location {
		geocoder, closeFn, err = newGeocoder(ctx, config.Geocoding, log)
		if err != nil {
			return nil, closeFn, fmt.Errorf("building geocoder: %w", err)
		}
	}

	aggregator, err := scoring.NewAggregator(geocoder, regs, log)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return aggregator, closeFn, nil
}

func newEvaluator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Evaluator, error) {
	if cfg.Gemini == nil {
		cfg.Gemini = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithFields(log, logger.ProviderFields("gemini", cfg.Gemini.Model)...).
		With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	evaluator := gemini.NewEvaluator(generator, cfg.Gemini.MaxLogLength, logger.WithFields(log, logger.ProviderFields("gemini", generator.Model())...))
	evaluator.SetPromptOverrides(gemini.PromptOverrides{
		Focus:        cfg.Gemini.Focus,
		DealBreakers: cfg.Gemini.DealBreakers,
		Notes:        cfg.Gemini.Notes,
	})
	return evaluator, nil
}

// prepareFilters builds the pre-scoring steps. A skill match step that
// cannot get an evaluator is disabled with the reason.
func prepareFilters(ctx context.Context, config *Config, log *zap.Logger) ([]filtering.Filter, *filtering.Config, ai.Evaluator) {
	aiCfg := &filtering.AIConfig{}
	if config.AI != nil {
		aiCfg.Enabled = config.AI.Enabled
		aiCfg.MinimumScore = config.AI.MinimumScore
		aiCfg.Concurrency = config.AI.Concurrency
		aiCfg.Overwrite = config.AI.Overwrite
		if config.AI.Gemini != nil {
			aiCfg.Model = config.AI.Gemini.Model
		}
	}

	steps := []filtering.Filter{
		filtering.NewExcludeFile(config.ExcludeFile),
		filtering.NewEmployers(nil),
		filtering.NewSkillMatch(aiCfg),
	}

	var evaluator ai.Evaluator
	if aiCfg.Enabled {
		var err error
		evaluator, err = newEvaluator(ctx, config.AI, log)
		if err != nil {
			log.Warn("skipping skill match", zap.Error(err))
			filtering.DisableByName(steps, "skill_match", err.Error())
		}
	}

	return steps, &filtering.Config{Employers: config.excludedEmployers(), AI: aiCfg}, evaluator
}
