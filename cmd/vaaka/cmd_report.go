package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vaaka/config"
	"github.com/yairfalse/vaaka/storage"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// driftHistoryWindow bounds how far back --diff looks for the
// previous score of each load balancer.
const driftHistoryWindow = 32

var (
	reportOutput    string
	reportRunSeq    uint64
	reportDiff      bool
	reportStorePath string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show results from the history store",
	Long: `Print a stored audit run without touching AWS.

By default the latest run is shown. --run selects an older run by its
sequence number and --diff adds per-load-balancer score drift against
the previous audit.`,
	Example: `  vaaka report                 # Latest run
  vaaka report --run 12        # A specific run
  vaaka report --diff          # Score drift vs previous audit
  vaaka report --output csv    # Export as CSV`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "table", "Output format: table, json, csv")
	reportCmd.Flags().Uint64Var(&reportRunSeq, "run", 0, "Run sequence number (default: latest)")
	reportCmd.Flags().BoolVar(&reportDiff, "diff", false, "Show score drift vs the previous audit")
	reportCmd.Flags().StringVar(&reportStorePath, "store", "", "History store directory (overrides config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if !contains(validOutputs, reportOutput) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			reportOutput, strings.Join(validOutputs, ", "))
	}

	storePath, err := resolveStorePath()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger("vaaka")
	store, err := storage.NewStore(storePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	summary, seq, err := loadStoredRun(store)
	if err != nil {
		return err
	}

	results, err := store.Results(seq)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	run := &types.RunResult{Summary: summary, Results: results}
	run.SortResults()

	var drift map[string]float64
	if reportDiff {
		drift = scoreDrift(store, seq, results)
	}

	return renderRun(os.Stdout, run, reportOutput, drift)
}

// resolveStorePath finds the store without requiring a full audit
// config. The report never talks to AWS.
func resolveStorePath() (string, error) {
	path := config.Default().Storage.Path
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return "", err
		}
		path = cfg.Storage.Path
	}
	if reportStorePath != "" {
		path = reportStorePath
	}
	return path, nil
}

func loadStoredRun(store *storage.Store) (types.RunSummary, uint64, error) {
	if reportRunSeq > 0 {
		summary, err := store.Run(reportRunSeq)
		return summary, reportRunSeq, err
	}
	return store.LatestRun()
}

// scoreDrift computes per-load-balancer score change between the
// viewed run and the closest audit before it.
func scoreDrift(store *storage.Store, seq uint64, results []types.AuditResult) map[string]float64 {
	drift := make(map[string]float64)
	for _, r := range results {
		if r.Failed() {
			continue
		}

		points, err := store.ScoreHistory(r.ARN, driftHistoryWindow)
		if err != nil {
			continue
		}

		var prevScore float64
		found := false
		for _, p := range points {
			if p.Seq < seq {
				prevScore = p.Score
				found = true
			}
		}
		if found {
			drift[r.ARN] = r.HealthScore - prevScore
		}
	}
	return drift
}
