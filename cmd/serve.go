package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/server"
	"github.com/spigell/talent-match/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default is server.listen)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := commandContext()
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
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

	// Requests choose their own filters, so a geocoder is built whenever
	// one can be.
	config.Filters.Location = true
	aggregator, closeGeocoder, err := newAggregator(ctx, config, logger)
	if err != nil {
		logger.Warn("location scoring is unavailable", zap.Error(err))
		config.Filters.Location = false
		aggregator, closeGeocoder, err = newAggregator(ctx, config, logger)
		if err != nil {
			logger.Fatal("building the scorer", zap.Error(err))
		}
	}
	defer closeGeocoder()

	batch, err := matching.NewBatch(aggregator, config.Batch, logger)
	if err != nil {
		logger.Fatal("building the batch", zap.Error(err))
	}

	opts := server.Options{Scorer: aggregator, Batch: batch, Logger: logger}
	if config.Store != nil && config.Store.Path != "" {
		db, err := store.Open(config.Store.Path)
		if err != nil {
			logger.Fatal("opening the store", zap.Error(err))
		}
		defer db.Close()
		opts.Store = db
	}

	srv, err := server.New(opts)
	if err != nil {
		logger.Fatal("building the server", zap.Error(err))
	}

	listen := ":8080"
	if config.Server != nil && config.Server.Listen != "" {
		listen = config.Server.Listen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(listen)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.String("reason", "signal received"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", zap.Error(err))
		}
	}
}
