package cli

import (
	"github.com/spf13/cobra"
)

type RunOptions struct {
	Date   string
	Strict bool
	DryRun bool
}

func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one date",
		RunE: func(c *cobra.Command, args []string) error {
			return runPipeline(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Run date as YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Fail the load stage if any row upsert fails (overrides STRICT_LOAD)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Extract and aggregate, log the totals, skip the load (overrides DRY_RUN)")

	return cmd
}

type SetupOptions struct {
	Reset           bool
	SkipOnline      bool
	SampleCSV       bool
	CreateDatabases bool
}

func NewSetupCmd() *cobra.Command {
	opts := &SetupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create and seed the source table, and create the summary table",
		RunE: func(c *cobra.Command, args []string) error {
			return runSetup(c, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Reset, "reset", true, "Truncate online_sales before seeding")
	cmd.Flags().BoolVar(&opts.SkipOnline, "skip-online", false, "Do not touch the PostgreSQL source")
	cmd.Flags().BoolVar(&opts.SampleCSV, "sample-csv", true, "Write a sample in-store CSV when none exists")
	cmd.Flags().BoolVar(&opts.CreateDatabases, "create-databases", true, "Create the PostgreSQL source database and the MySQL warehouse database when missing")

	return cmd
}

func NewReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the product sales summary",
		RunE: func(c *cobra.Command, args []string) error {
			return runReport(c)
		},
	}
}

func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent runs from the run log",
		RunE: func(c *cobra.Command, args []string) error {
			return runHistory(c, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent runs to show (0 for all)")

	return cmd
}
