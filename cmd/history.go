package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/output"
	"github.com/spigell/talent-match/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List stored match runs or show one of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		history(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("output", "o", output.FormatTable, "output format: table or json")
	historyCmd.Flags().String("job", "", "only list runs of this job id")
	historyCmd.Flags().Int("limit", store.DefaultListLimit, "maximum number of runs to list")
	historyCmd.Flags().String("store", "", "path to the history database (default is store.path)")
	viper.BindPFlag("store.path", historyCmd.Flags().Lookup("store"))
}

func history(cmd *cobra.Command, args []string) {
	ctx := context.Background()

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
	if config.Store == nil || config.Store.Path == "" {
		logger.Fatal("store.path is not configured", zap.String("hint", "set store.path, --store or TALENT_MATCH_STORE_PATH"))
	}

	db, err := store.Open(config.Store.Path)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer db.Close()

	var data any
	if len(args) == 1 {
		report, err := db.GetRun(ctx, args[0])
		if err != nil {
			logger.Fatal("getting the run", zap.Error(err))
		}
		data = report
	} else {
		jobID, _ := cmd.Flags().GetString("job")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.ListRuns(ctx, jobID, limit)
		if err != nil {
			logger.Fatal("listing runs", zap.Error(err))
		}
		data = runs
	}

	if err := output.Write(os.Stdout, format, data); err != nil {
		logger.Fatal("writing history", zap.Error(err))
	}
}
