package exporter

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/f5xc-exporter/pkg/util"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the exporter version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), util.VersionString())
	},
}
