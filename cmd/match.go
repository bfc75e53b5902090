package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/filtering"
	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/output"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/store"
)

const (
	PromptDone                = "Done"
	PromptBack                = "back"
	PromptBreakdown           = "Show a candidate breakdown"
	PromptFilters             = "Show filter status"
	PromptAppendToExcludeFile = "Append all candidates to exclude file"
	PromptCandidatesToFile    = "Dump candidates to file"
	PromptSaveRun             = "Save run to history"
)

var errExit = errors.New("exit requested")

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score every candidate against the job and rank them",
	Run: func(cmd *cobra.Command, _ []string) {
		runMatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("job-file", "", "json file with the job document")
	matchCmd.Flags().String("candidates-file", "", "json file with candidate documents (array or object keyed by id)")
	matchCmd.Flags().StringP("exclude-file", "e", "", "special file with candidates to exclude. Default is unset.")
	matchCmd.Flags().BoolP("yes", "y", false, "do not ask what to do with the results")
	matchCmd.Flags().StringP("output", "o", output.FormatTable, "output format: table or json")
	matchCmd.Flags().Bool("save", false, "save the run to history (requires store.path)")

	viper.BindPFlag("job-file", matchCmd.Flags().Lookup("job-file"))
	viper.BindPFlag("candidates-file", matchCmd.Flags().Lookup("candidates-file"))
	viper.BindPFlag("exclude-file", matchCmd.Flags().Lookup("exclude-file"))
}

// session holds what the interactive actions work on.
type session struct {
	config     *Config
	logger     *zap.Logger
	job        *records.Job
	candidates *records.Candidates
	report     *matching.Report
	scorer     matching.Scorer
	steps      []filtering.Filter
	saved      bool
}

func runMatch(cmd *cobra.Command) {
	ctx, stop := commandContext()
	defer stop()

	format, err := outputFormat(cmd)
	if err != nil {
		log.Fatal(err)
	}

	// Results go to stdout, so logs move to stderr.
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
	if err := errors.Join(config.Validate(), config.requireInputs()); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("starting the talent-match", zap.String("version", version))

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

	logger.Info("loaded candidates", zap.String("job_id", job.ID), zap.Int("count", candidates.Len()))

	steps, filterCfg, evaluator := prepareFilters(ctx, config, logger)
	candidates, _, err = filtering.Run(ctx, filterCfg, filtering.Deps{
		Logger:    logger,
		Job:       job,
		Evaluator: evaluator,
	}, steps, candidates)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if candidates.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates left after filters"))
		return
	}

	aggregator, closeGeocoder, err := newAggregator(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the scorer", zap.Error(err))
	}
	defer closeGeocoder()

	batch, err := matching.NewBatch(aggregator, config.Batch, logger)
	if err != nil {
		logger.Fatal("building the batch", zap.Error(err))
	}

	report, err := batch.Run(ctx, job, candidates, config.Filters)
	if err != nil {
		logger.Fatal("matching failed", zap.Error(err))
	}

	if err := output.Write(os.Stdout, format, report); err != nil {
		logger.Fatal("writing results", zap.Error(err))
	}

	s := &session{
		config:     config,
		logger:     logger,
		job:        job,
		candidates: candidates,
		report:     report,
		scorer:     aggregator,
		steps:      steps,
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := s.saveRun(ctx); err != nil {
			logger.Fatal("saving the run", zap.Error(err))
		}
	}

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return
	}

	for {
		prompt := promptui.Select{
			Label: "What next?",
			Items: s.actions(),
		}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := s.handleAction(ctx, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func (s *session) actions() []string {
	items := []string{PromptBreakdown, PromptFilters, PromptCandidatesToFile}
	if s.config.ExcludeFile != "" && s.candidates.Len() != 0 {
		items = append(items, PromptAppendToExcludeFile)
	}
	if s.config.Store != nil && s.config.Store.Path != "" && !s.saved {
		items = append(items, PromptSaveRun)
	}
	return append(items, PromptDone)
}

func (s *session) handleAction(ctx context.Context, action string) error {
	switch action {
	case PromptDone:
		s.logger.Info("exiting", zap.String("reason", "done"))
		return errExit
	case PromptBreakdown:
		return s.breakdown(ctx)
	case PromptFilters:
		return output.Table(os.Stdout, filtering.Describe(s.steps))
	case PromptCandidatesToFile:
		filename, err := s.candidates.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump candidates to file: %w", err)
		}
		s.logger.Info("dumping candidates to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		return s.appendToExcludeFile()
	case PromptSaveRun:
		return s.saveRun(ctx)
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func (s *session) breakdown(ctx context.Context) error {
	items := make([]string, 0, len(s.report.Results)+1)
	for _, r := range s.report.Results {
		label := fmt.Sprintf("%s %s / effective %d", r.CandidateID, r.CandidateName, r.EffectiveScore)
		if r.Failed {
			label = fmt.Sprintf("%s %s / failed", r.CandidateID, r.CandidateName)
		}
		items = append(items, label)
	}

	prompt := promptui.Select{
		Label: "Choose a candidate and press ENTER",
		Items: append(items, PromptBack),
		Size:  10,
	}
	_, selected, err := prompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptBack {
		return nil
	}

	candidateID := strings.Split(selected, " ")[0]
	candidate, err := s.candidates.FindByID(candidateID)
	if err != nil {
		return err
	}

	detail, err := matching.Single(ctx, s.scorer, candidate, s.job, s.config.Filters)
	if err != nil {
		s.logger.Warn("candidate cannot be scored", zap.String(logger.FieldCandidateID, candidateID), zap.Error(err))
		return nil
	}
	return output.Table(os.Stdout, detail)
}

func (s *session) appendToExcludeFile() error {
	excludeFile := s.config.ExcludeFile

	excluded, err := records.LoadExcluded(excludeFile)
	if err != nil {
		return err
	}

	excluded.Append(s.candidates.ToExcluded(s.job.ID, "reviewed in run "+s.report.RunID))
	if err := excluded.ToFile(excludeFile); err != nil {
		return err
	}

	s.logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", s.candidates.Len()))

	s.candidates.Exclude(records.CandidateIDField, excluded.IDs())
	return nil
}

func (s *session) saveRun(ctx context.Context) error {
	if s.config.Store == nil || s.config.Store.Path == "" {
		return errors.New("store.path is not configured")
	}

	db, err := store.Open(s.config.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRun(ctx, s.report); err != nil {
		return err
	}
	s.saved = true

	s.logger.Info("run saved", zap.String(logger.FieldRunID, s.report.RunID), zap.String("path", s.config.Store.Path))
	return nil
}
