// Package cli wires configuration, connections and the ETL pipeline behind
// the salesetl command line.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "salesetl",
		Short: "salesetl - daily retail sales consolidation",
		Long: `salesetl merges online sales from PostgreSQL with in-store sales from a CSV
file, totals quantity and revenue per product, and upserts the totals into a
reporting store (MySQL, SQL Server, SQLite or MongoDB). Runs are idempotent:
re-running a date overwrites that date's totals.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewRunCmd(), NewSetupCmd(), NewReportCmd(), NewHistoryCmd())

	return rootCmd
}
