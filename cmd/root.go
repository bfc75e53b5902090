package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/output"
	"github.com/spigell/talent-match/internal/scoring"
)

const (
	app = "talent-match"
)

type Config struct {
	JobFile        string            `mapstructure:"job-file"`
	CandidatesFile string            `mapstructure:"candidates-file"`
	ExcludeFile    string            `mapstructure:"exclude-file"`
	Filters        scoring.Filters   `mapstructure:"filters"`
	Registries     *RegistriesConfig `mapstructure:"registries"`
	Geocoding      *GeocodingConfig  `mapstructure:"geocoding"`
	Batch          matching.Options  `mapstructure:"batch"`
	Exclude        *struct {
		Employers []string `mapstructure:"employers"`
	} `mapstructure:"exclude"`
	AI     *AIConfig     `mapstructure:"ai"`
	Store  *StoreConfig  `mapstructure:"store"`
	Server *ServerConfig `mapstructure:"server"`
}

type RegistriesConfig struct {
	InstitutionsFile string `mapstructure:"institutions-file"`
	IndustriesFile   string `mapstructure:"industries-file"`
}

type GeocodingConfig struct {
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base-url"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate-limit"`
	Burst      int           `mapstructure:"burst"`
	Cache      *CacheConfig  `mapstructure:"cache"`
}

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max-entries"`
	RedisURL   string        `mapstructure:"redis-url"`
}

type AIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinimumScore float64       `mapstructure:"minimum-score"`
	Concurrency  int           `mapstructure:"concurrency"`
	Overwrite    bool          `mapstructure:"overwrite"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
	Focus        string `mapstructure:"focus"`
	DealBreakers string `mapstructure:"deal-breakers"`
	Notes        string `mapstructure:"notes"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talent-match scores candidates against a job and ranks them",
	}
)

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"geocoding.api-key-file": "TALENT_MATCH_GEOCODING_KEY_FILE",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"store.path":             "TALENT_MATCH_STORE_PATH",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("geocoding.provider", geo.ProviderGoogle)
	viper.SetDefault("geocoding.timeout", 5*time.Second)
	viper.SetDefault("geocoding.rate-limit", 10)
	viper.SetDefault("geocoding.burst", 5)
	viper.SetDefault("batch.concurrency", matching.DefaultConcurrency)
	viper.SetDefault("batch.candidate-timeout", matching.DefaultCandidateTimeout)
	viper.SetDefault("ai.concurrency", 4)
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("server.listen", ":8080")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talent-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Only the commands below read the config file.
	called := false
	for _, c := range []*cobra.Command{matchCmd, scoreCmd, serveCmd, historyCmd} {
		if c.CalledAs() != "" {
			called = true
			break
		}
	}
	if !called {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config the defaults and flags are enough.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		config = &Config{}
	}

	return config, nil
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if g := c.Geocoding; g != nil {
		switch strings.ToLower(strings.TrimSpace(g.Provider)) {
		case "", geo.ProviderGoogle, geo.ProviderProxy:
		default:
			errs = append(errs, fmt.Errorf("geocoding.provider: unsupported provider %q", g.Provider))
		}
		if g.RateLimit < 0 {
			errs = append(errs, errors.New("geocoding.rate-limit must not be negative"))
		}
		if g.Timeout < 0 {
			errs = append(errs, errors.New("geocoding.timeout must not be negative"))
		}
		if strings.EqualFold(g.Provider, geo.ProviderProxy) && strings.TrimSpace(g.BaseURL) == "" {
			errs = append(errs, errors.New("geocoding.base-url is required for the proxy provider"))
		}
	}

	if c.Batch.Concurrency < 0 {
		errs = append(errs, errors.New("batch.concurrency must not be negative"))
	}

	if c.AI != nil && c.AI.Enabled {
		if c.AI.MinimumScore < 0 || c.AI.MinimumScore > 100 {
			errs = append(errs, errors.New("ai.minimum-score must be within 0..100"))
		}
	}

	return errors.Join(errs...)
}

// requireInputs checks the files needed by the commands that read records.
func (c *Config) requireInputs() error {
	var errs []error
	if strings.TrimSpace(c.JobFile) == "" {
		errs = append(errs, errors.New("job-file is required"))
	}
	if strings.TrimSpace(c.CandidatesFile) == "" {
		errs = append(errs, errors.New("candidates-file is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) excludedEmployers() []string {
	if c.Exclude == nil {
		return nil
	}
	return c.Exclude.Employers
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format := output.FormatTable
	if flag := cmd.Flag("output"); flag != nil {
		format = strings.ToLower(strings.TrimSpace(flag.Value.String()))
	}
	switch format {
	case output.FormatTable, output.FormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use table or json)", format)
	}
}
