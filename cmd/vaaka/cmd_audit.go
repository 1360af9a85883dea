package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	auditOutput         string
	auditWorkers        int
	auditStorePath      string
	auditJournalDir     string
	auditWaiverDir      string
	auditFailOnCritical bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run one audit sweep over the fleet",
	Long: `Audit every load balancer in the region and print the results.

Each load balancer is checked for security, performance, cost and
observability problems, scored 0-100 and priced per month. The run
lands in the history store and the append-only journal, so later
sweeps can show score drift.`,
	Example: `  vaaka audit                          # Audit with defaults
  vaaka audit --region eu-west-1       # Audit a specific region
  vaaka audit --output json            # Machine-readable results
  vaaka audit --waivers ./waivers      # Apply waiver policies
  vaaka audit --fail-on-critical       # Exit 1 on unwaived criticals`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "table", "Output format: table, json, csv")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 0, "Concurrent resource audits (overrides config)")
	auditCmd.Flags().StringVar(&auditStorePath, "store", "", "History store directory (overrides config)")
	auditCmd.Flags().StringVar(&auditJournalDir, "journal-dir", "", "Journal directory (overrides config)")
	auditCmd.Flags().StringVar(&auditWaiverDir, "waivers", "", "Waiver policy bundle directory")
	auditCmd.Flags().BoolVar(&auditFailOnCritical, "fail-on-critical", false, "Exit nonzero when unwaived critical issues remain")
}

var validOutputs = []string{"table", "json", "csv"}

func runAudit(cmd *cobra.Command, args []string) error {
	if !contains(validOutputs, auditOutput) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			auditOutput, strings.Join(validOutputs, ", "))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if auditWorkers > 0 {
		cfg.Audit.Workers = auditWorkers
	}
	if auditStorePath != "" {
		cfg.Storage.Path = auditStorePath
	}
	if auditJournalDir != "" {
		cfg.Journal.Dir = auditJournalDir
	}
	if auditWaiverDir != "" {
		cfg.Waivers.BundleDir = auditWaiverDir
	}

	audit := &AuditCommand{
		Output:         auditOutput,
		FailOnCritical: auditFailOnCritical,
	}
	return audit.Run(cmd.Context(), cfg)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
