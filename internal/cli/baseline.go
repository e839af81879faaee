package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quantloop/qloop/internal/determinism"
	"github.com/quantloop/qloop/internal/feed"
	"github.com/quantloop/qloop/internal/metrics"
	"github.com/quantloop/qloop/internal/pipeline"
	"github.com/quantloop/qloop/internal/report"
)

var (
	baselinePath string
	checkRuns    int
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage determinism baselines",
}

var baselineSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Run once and save the metrics digest as the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		art, err := executeRun(cmd.Context(), cfg, 0)
		if err != nil {
			return err
		}
		store := determinism.NewStore(baselineFile())
		key := determinism.Key{Seed: art.Seed, FixtureHash: art.FixtureHash, CodeHash: art.CodeHash}
		if err := store.Save(key, art.Metrics.Digest()); err != nil {
			return err
		}
		logger.Info().
			Str("baseline", baselineFile()).
			Str("key", key.String()).
			Str("digest", art.Metrics.Digest()).
			Msg("baseline saved")
		return nil
	},
}

var baselineCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run repeatedly and verify metrics are bit-identical to each other and the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := feed.LoadBars(cfg.Fixtures)
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}

		store := determinism.NewStore(baselineFile())
		v := determinism.NewVerifier(store, checkRuns, logger)
		run := func(i int) (metrics.RunMetrics, error) {
			return pipeline.NewRunner(cfg, fs, logger).Run(cmd.Context())
		}

		res, err := v.Verify(cfg.Seed, fs.Hash, run)
		if err != nil {
			return err
		}
		if err := report.WriteDeterminism(cfg.ReportDir, res); err != nil {
			return err
		}
		for i, m := range res.Runs {
			dir := filepath.Join(cfg.ReportDir, fmt.Sprintf("run_%d", i+1))
			if err := report.WriteRun(dir, report.NewRunArtifact(res.Key(), m)); err != nil {
				return err
			}
		}

		switch res.Verdict {
		case determinism.VerdictFail:
			for _, d := range res.Drift {
				logger.Error().
					Str("field", d.Field).
					Interface("expected", d.Expected).
					Interface("observed", d.Observed).
					Int("run", d.Run).
					Msg("drift")
			}
			return fmt.Errorf("determinism check failed with %d drifting field(s)", len(res.Drift))
		case determinism.VerdictNoBaseline:
			logger.Warn().Str("key", res.Key().String()).Msg("runs agree but no baseline saved; run 'qloop baseline save'")
			return nil
		default:
			logger.Info().Str("key", res.Key().String()).Int("runs", len(res.Runs)).Msg("determinism check passed")
			return nil
		}
	},
}

func baselineFile() string {
	if baselinePath != "" {
		return baselinePath
	}
	return filepath.Join(cfg.ReportDir, "baseline.json")
}

func init() {
	baselineCmd.PersistentFlags().StringVar(&baselinePath, "baseline", "", "Baseline store path (default <report_dir>/baseline.json)")
	baselineCheckCmd.Flags().IntVar(&checkRuns, "runs", determinism.DefaultRuns, "Number of repeated runs to compare")

	baselineCmd.AddCommand(baselineSaveCmd)
	baselineCmd.AddCommand(baselineCheckCmd)
}
