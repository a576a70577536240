package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/config"
	"github.com/username/orphanrun/pkg/logging"
)

type globalFlags struct {
	ConfigPath string
	LogLevel   string
	Dev        bool
}

var (
	flags  globalFlags
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orphanrun",
	Short: "Detect qubic-selfish orphan runs in a block log",
	Long: `orphanrun reads a block log (CSV file, Redis or PostgreSQL), finds runs of
consecutive orphaned heights whose mainchain counterparts were all mined by
qubic, and serves or renders them as timeline diagrams.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flags.ConfigPath != "" {
			os.Setenv("ORPHANRUN_CONFIG_PATH", flags.ConfigPath)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = flags.LogLevel
		}
		if flags.Dev {
			cfg.LogDevelopment = true
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogDevelopment)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&flags.Dev, "dev", false, "human readable logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
