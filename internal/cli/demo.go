package cli

import (
	"github.com/spf13/cobra"

	"github.com/quantloop/qloop/internal/report"
)

// demo is a short paced run for watching the loop live: burst included,
// throttled so the log output is readable.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a short paced simulation with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		c.DurationS = 15
		art, err := executeRun(cmd.Context(), c, 2000)
		if err != nil {
			return err
		}
		if err := report.WriteRun(c.ReportDir, art); err != nil {
			return err
		}
		logger.Info().Str("dir", c.ReportDir).Msg("demo complete")
		return nil
	},
}
