package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/username/orphanrun"
	"github.com/username/orphanrun/pkg/config"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the feed and serve runs, layouts, counters and the raw logs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.ListenAddr = serveListen
		}

		source, closeSource, err := openSource(cfg, logger)
		if err != nil {
			return err
		}
		defer closeSource()

		analyzer := newAnalyzer(source, cfg, logger)
		srv := server.New(analyzer, cfg, logger)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := srv.Start(); err != nil {
			return err
		}

		go func() {
			if err := srv.WatchJobs(ctx); err != nil {
				logger.Error("jobs stream stopped", zap.Error(err))
			}
		}()

		err = analyzer.Run(ctx)
		logger.Info("shutting down")
		if stopErr := srv.Stop(context.Background()); stopErr != nil {
			logger.Error("failed to stop server", zap.Error(stopErr))
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides listen_addr)")
}

func newAnalyzer(source core.FeedSource, c *config.Config, log *zap.Logger) *orphanrun.Analyzer {
	return orphanrun.New(source,
		orphanrun.WithLogger(log),
		orphanrun.WithRetry(c.MaxRetries, c.RetryDelay),
		orphanrun.WithMinRunLength(c.MinRunLength),
		orphanrun.WithPollInterval(c.PollInterval),
	)
}
