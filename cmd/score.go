package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/output"
	"github.com/spigell/talent-match/internal/records"
)

var scoreCmd = &cobra.Command{
	Use:   "score <candidate-id>",
	Short: "Show the score breakdown of one candidate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScore(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("output", "o", output.FormatTable, "output format: table or json")
	scoreCmd.Flags().Bool("location", false, "enable the location filter for this run")
	scoreCmd.Flags().Bool("institution", false, "enable the institution filter for this run")
	scoreCmd.Flags().Bool("industry", false, "enable the industry filter for this run")
}

func runScore(cmd *cobra.Command, candidateID string) {
	ctx, stop := commandContext()
	defer stop()

	format, err := outputFormat(cmd)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logger.NewWithOptions(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Stderr: true,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if err := config.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if err := config.requireInputs(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Flags switch filters on in addition to the config file.
	for name, filter := range map[string]*bool{
		"location":    &config.Filters.Location,
		"institution": &config.Filters.Institution,
		"industry":    &config.Filters.Industry,
	} {
		if on, _ := cmd.Flags().GetBool(name); on {
			*filter = true
		}
	}

	job, err := records.LoadJob(config.JobFile)
	if err != nil {
		logger.Fatal("loading the job", zap.Error(err))
	}

	candidates, rejected, err := records.LoadCandidates(config.CandidatesFile)
	if err != nil {
		logger.Fatal("loading candidates", zap.Error(err))
	}
	for _, reason := range rejected {
		logger.Warn("skipping invalid candidate", zap.Error(reason))
	}

	candidate, err := candidates.FindByID(candidateID)
	if err != nil {
		logger.Fatal("finding the candidate", zap.Error(err), zap.Strings("known ids", candidates.IDs()))
	}

	aggregator, closeGeocoder, err := newAggregator(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the scorer", zap.Error(err))
	}
	defer closeGeocoder()

	detail, err := matching.Single(ctx, aggregator, candidate, job, config.Filters)
	if err != nil {
		logger.Fatal("scoring the candidate", zap.Error(err))
	}

	if err := output.Write(os.Stdout, format, detail); err != nil {
		logger.Fatal("writing the breakdown", zap.Error(err))
	}
}
