package exporter

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f5xc-exporter/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "f5xc-exporter",
	Short:         "Prometheus exporter for F5 Distributed Cloud tenants",
	Long:          "Collects quota, security, load balancer, DNS and synthetic monitoring metrics from the F5XC API and serves them on /metrics.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		return run(cmd.Context(), cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "-> Path to a YAML config file (optional)")
	initServerFlags(rootCmd)
	initTenantFlags(rootCmd)
	initResilienceFlags(rootCmd)
	initCollectorFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(checkCmd, versionCmd)
}
