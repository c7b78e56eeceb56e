package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/BartekS5/salesetl/internal/config"
	"github.com/BartekS5/salesetl/internal/etl"
	"github.com/BartekS5/salesetl/pkg/database"
	"github.com/BartekS5/salesetl/pkg/logger"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// bootstrap loads config and builds the logger. Logs go to stderr so
// stdout stays free for reports.
func bootstrap(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
		Out:   cmd.ErrOrStderr(),
		File:  cfg.App.LogFile,
	})
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
	}
	return cfg, log, nil
}

// openSink builds the configured reporting store. With verify the server
// is pinged first; without it nothing is dialed until the first sink
// operation. The returned func releases the connection.
func openSink(ctx context.Context, cfg *config.Config, verify bool) (etl.Sink, func(), error) {
	if cfg.Sink.Driver == config.DriverMongo {
		connect := database.OpenMongo
		if verify {
			connect = database.ConnectMongo
		}
		client, err := connect(ctx, cfg.Sink.DSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return etl.NewMongoSink(client, cfg.Sink.MongoDatabase, cfg.Sink.Table), closeFn, nil
	}

	var (
		db  *sql.DB
		err error
	)
	if verify {
		db, err = database.ConnectSQL(ctx, cfg.Sink.Driver, cfg.Sink.DSN)
	} else {
		db, err = database.OpenSQL(cfg.Sink.Driver, cfg.Sink.DSN)
	}
	if err != nil {
		return nil, nil, err
	}
	sink, err := etl.NewSQLSink(db, cfg.Sink.Driver, cfg.Sink.Table)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return sink, func() { db.Close() }, nil
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if opts.Date != "" {
		d, err := utils.ParseDate(opts.Date)
		if err != nil {
			return err
		}
		runDate = d
	}

	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if cmd.Flags().Changed("strict") {
		cfg.Run.Strict = opts.Strict
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Run.DryRun = opts.DryRun
	}

	ctx := cmd.Context()

	// Neither store is dialed here: connection failures belong to the
	// extract and load stages, where they are retried and logged.
	pool, err := database.OpenPostgres(ctx, cfg.Online.ConnectionString())
	if err != nil {
		return err
	}
	defer pool.Close()

	sink, closeSink, err := openSink(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeSink()

	pipeline := etl.NewPipeline(
		etl.NewRelationalExtractor(etl.NewPostgresSalesStore(pool, cfg.Online.Table), log),
		etl.NewFileExtractor(cfg.InStore.CSVPath, log),
		etl.NewLoader(sink, cfg.Run.Strict, log.With().Str("stage", etl.StageLoad).Str("sink", cfg.Sink.Driver).Logger()),
		etl.Options{
			DryRun:           cfg.Run.DryRun,
			StageRetries:     cfg.Run.StageRetries,
			RetryBackoff:     cfg.Run.RetryBackoff,
			ExtractTimeout:   cfg.Run.ExtractTimeout,
			AggregateTimeout: cfg.Run.AggregateTimeout,
			LoadTimeout:      cfg.Run.LoadTimeout,
		},
		log,
	)
	if cfg.Run.RunLogPath != "" {
		pipeline.RunLog = etl.NewRunLog(cfg.Run.RunLogPath)
	}

	res, runErr := pipeline.Run(ctx, runDate)

	if stats, err := pipeline.Metrics.JSON(); err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), stats)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run for %s finished: %s, %d products, %d upserts failed.\n",
		runDate.Format(utils.DateLayout), res.State, len(res.Aggregates), res.Load.Failed)
	return nil
}

func runSetup(cmd *cobra.Command, opts *SetupOptions) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()

	if opts.CreateDatabases {
		if err := ensureDatabases(ctx, cfg, opts.SkipOnline, log); err != nil {
			return err
		}
	}

	if !opts.SkipOnline {
		pool, err := database.ConnectPostgres(ctx, cfg.Online.ConnectionString())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := etl.NewProvisioner(pool, cfg.Online.Table, log).Provision(ctx, etl.SampleOnlineSales, opts.Reset); err != nil {
			return fmt.Errorf("postgres setup: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PostgreSQL source ready.")
	}

	sink, closeSink, err := openSink(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer closeSink()

	if err := sink.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s setup: %w", cfg.Sink.Driver, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s summary store ready.\n", cfg.Sink.Driver)

	if opts.SampleCSV {
		_, statErr := os.Stat(cfg.InStore.CSVPath)
		switch {
		case errors.Is(statErr, os.ErrNotExist):
			if err := etl.WriteSampleCSV(cfg.InStore.CSVPath, etl.SampleInStoreSales); err != nil {
				return err
			}
			log.Info().Str("file", cfg.InStore.CSVPath).Int("rows", len(etl.SampleInStoreSales)).Msg("wrote sample in-store sales")
		case statErr != nil:
			return fmt.Errorf("checking %s: %w", cfg.InStore.CSVPath, statErr)
		default:
			log.Info().Str("file", cfg.InStore.CSVPath).Msg("in-store sales file exists, leaving it alone")
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Setup done.")
	return nil
}

// ensureDatabases creates the source database and, for MySQL, the
// warehouse database when they are missing. Other sinks create their
// storage on first write.
func ensureDatabases(ctx context.Context, cfg *config.Config, skipOnline bool, log zerolog.Logger) error {
	if !skipOnline {
		created, err := database.EnsurePostgresDatabase(ctx, cfg.Online.ConnectionString())
		if err != nil {
			return fmt.Errorf("postgres setup: %w", err)
		}
		if created {
			log.Info().Msg("created online sales database")
		}
	}
	if cfg.Sink.Driver == config.DriverMySQL {
		if err := database.EnsureMySQLDatabase(ctx, cfg.Sink.DSN); err != nil {
			return fmt.Errorf("mysql setup: %w", err)
		}
	}
	return nil
}

func runReport(cmd *cobra.Command) error {
	cfg, _, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	sink, closeSink, err := openSink(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer closeSink()

	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}
	rows, err := sink.Summary(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "product_id\ttotal_quantity\ttotal_sale_amount\tlast_updated")
	for _, r := range rows {
		updated := ""
		if !r.LastUpdated.IsZero() {
			updated = r.LastUpdated.UTC().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", r.ProductID, r.TotalQuantity, r.TotalSaleAmount.StringFixed(2), updated)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, limit int) error {
	cfg, _, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if cfg.Run.RunLogPath == "" {
		return errors.New("RUN_LOG_PATH environment variable not set")
	}

	entries, err := etl.NewRunLog(cfg.Run.RunLogPath).Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "run_date\tstate\tstarted_at\tonline\tin_store\tproducts\tfailed\terror")
	for _, e := range entries {
		state := string(e.State)
		if e.DryRun {
			state += " (dry run)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.RunDate, state, e.StartedAt.UTC().Format(time.DateTime),
			e.OnlineOutcome, e.InStoreOutcome, e.Stats.Products, e.Load.Failed, e.Error)
	}
	return w.Flush()
}
