package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vaaka/config"
)

var (
	version = "0.1.0"

	cfgFile    string
	rootRegion string
	rootDebug  bool

	rootCmd = &cobra.Command{
		Use:   "vaaka",
		Short: "Load Balancer Fleet Auditor",
		Long: `Vaaka - Load Balancer Fleet Auditor

Vaaka audits your ALB and NLB fleet for security, performance, cost
and observability problems. Every load balancer gets a 0-100 health
score, a prioritized issue list and a monthly cost estimate.

Point it at a region, run a sweep, fix what it finds.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(rootDebug)
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Vaaka {{.Version}} - Load Balancer Fleet Auditor
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&rootRegion, "region", "r", "", "AWS region (overrides config and VAAKA_REGION)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadConfig layers defaults, the config file, environment variables
// and the region flag, in that order.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv()
	if rootRegion != "" {
		cfg.Region = rootRegion
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
