package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// SampleSale is one seed row.
type SampleSale struct {
	ProductID  int64
	Quantity   int64
	SaleAmount decimal.Decimal
	SaleDate   string
}

// SampleOnlineSales are the rows `salesetl setup` seeds online_sales with.
var SampleOnlineSales = []SampleSale{
	{101, 2, decimal.RequireFromString("40.00"), "2024-03-01"},
	{102, 1, decimal.RequireFromString("20.00"), "2024-03-01"},
	{103, 3, decimal.RequireFromString("60.00"), "2024-03-02"},
	{101, 1, decimal.RequireFromString("20.00"), "2024-03-02"},
	{104, 2, decimal.RequireFromString("50.00"), "2024-03-03"},
	{105, 1, decimal.RequireFromString("25.00"), "2024-03-03"},
	{101, 3, decimal.RequireFromString("60.00"), "2024-03-04"},
	{102, 2, decimal.RequireFromString("40.00"), "2024-03-04"},
	{103, 1, decimal.RequireFromString("20.00"), "2024-03-05"},
}

// SampleInStoreSales are written by WriteSampleCSV when no in-store file
// exists yet.
var SampleInStoreSales = []SampleSale{
	{101, 1, decimal.RequireFromString("20.00"), "2024-03-01"},
	{104, 1, decimal.RequireFromString("25.00"), "2024-03-01"},
	{102, 2, decimal.RequireFromString("40.00"), "2024-03-02"},
	{105, 2, decimal.RequireFromString("50.00"), "2024-03-03"},
	{103, 4, decimal.RequireFromString("80.00"), "2024-03-04"},
	{106, 1, decimal.RequireFromString("15.50"), "2024-03-05"},
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Provisioner creates and seeds the online_sales table.
type Provisioner struct {
	db     TxBeginner
	table  string
	logger zerolog.Logger
}

func NewProvisioner(db TxBeginner, table string, logger zerolog.Logger) *Provisioner {
	return &Provisioner{db: db, table: table, logger: logger}
}

// Provision creates the table if needed. With reset it truncates the table
// and restarts sale_id before inserting rows. Everything happens in one
// transaction.
func (p *Provisioner) Provision(ctx context.Context, rows []SampleSale, reset bool) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			sale_id SERIAL PRIMARY KEY,
			product_id INT,
			quantity INT,
			sale_amount DECIMAL(10, 2),
			sale_date DATE
		)`, p.table)); err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}

	if reset {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s RESTART IDENTITY`, p.table)); err != nil {
			return fmt.Errorf("truncate %s: %w", p.table, err)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (product_id, quantity, sale_amount, sale_date)
		VALUES ($1, $2, $3, $4)`, p.table)
	for _, r := range rows {
		day, err := utils.ParseDate(r.SaleDate)
		if err != nil {
			return fmt.Errorf("seed row for product %d: %w", r.ProductID, err)
		}
		if _, err := tx.Exec(ctx, insert, r.ProductID, r.Quantity, r.SaleAmount, day); err != nil {
			return fmt.Errorf("insert seed row for product %d: %w", r.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	p.logger.Info().Str("table", p.table).Int("rows", len(rows)).Bool("reset", reset).Msg("online sales provisioned")
	return nil
}

// WriteSampleCSV writes rows as an in-store sales file with a header.
func WriteSampleCSV(path string, rows []SampleSale) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	records := [][]string{{models.ColProductID, models.ColQuantity, models.ColSaleAmount, models.ColSaleDate}}
	for _, r := range rows {
		records = append(records, []string{
			fmt.Sprint(r.ProductID),
			fmt.Sprint(r.Quantity),
			r.SaleAmount.StringFixed(2),
			r.SaleDate,
		})
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
