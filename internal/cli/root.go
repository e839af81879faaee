package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantloop/qloop/internal/config"
	"github.com/quantloop/qloop/internal/observ"
)

var (
	cfgFile  string
	logLevel string

	cfg    config.Root
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qloop",
	Short: "Deterministic trading decision-loop simulator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger = observ.NewLogger(cfg.Logging)
		return nil
	},
}

// Execute runs the root command. ctx cancellation aborts an in-flight run.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(versionCmd)
}
