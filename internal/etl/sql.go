package etl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// dialect holds the statements that differ between SQL sinks.
type dialect struct {
	name        string
	createTable string
	upsert      string
	selectAll   string
}

func dialectFor(driver, table string) (dialect, error) {
	selectAll := fmt.Sprintf(`SELECT product_id, total_quantity, total_sale_amount, last_updated FROM %s ORDER BY product_id`, table)

	switch driver {
	case "mysql":
		return dialect{
			name: driver,
			createTable: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					product_id INT PRIMARY KEY,
					total_quantity INT,
					total_sale_amount DECIMAL(10, 2),
					last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
				)`, table),
			// last_updated is set explicitly: ON UPDATE CURRENT_TIMESTAMP does
			// not fire when the new values equal the old ones. The row alias
			// needs MySQL 8.0.19 or later.
			upsert: fmt.Sprintf(`
				INSERT INTO %s (product_id, total_quantity, total_sale_amount, last_updated)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP) AS new
				ON DUPLICATE KEY UPDATE
					total_quantity = new.total_quantity,
					total_sale_amount = new.total_sale_amount,
					last_updated = CURRENT_TIMESTAMP`, table),
			selectAll: selectAll,
		}, nil

	case "sqlserver":
		return dialect{
			name: driver,
			createTable: fmt.Sprintf(`
				IF OBJECT_ID(N'%s', N'U') IS NULL
				CREATE TABLE %s (
					product_id INT NOT NULL PRIMARY KEY,
					total_quantity INT,
					total_sale_amount DECIMAL(10, 2),
					last_updated DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
				)`, table, table),
			upsert: fmt.Sprintf(`
				MERGE %s WITH (HOLDLOCK) AS t
				USING (SELECT @p1 AS product_id, @p2 AS total_quantity, CAST(@p3 AS DECIMAL(10, 2)) AS total_sale_amount) AS s
				ON t.product_id = s.product_id
				WHEN MATCHED THEN UPDATE SET
					total_quantity = s.total_quantity,
					total_sale_amount = s.total_sale_amount,
					last_updated = SYSUTCDATETIME()
				WHEN NOT MATCHED THEN
					INSERT (product_id, total_quantity, total_sale_amount, last_updated)
					VALUES (s.product_id, s.total_quantity, s.total_sale_amount, SYSUTCDATETIME());`, table),
			selectAll: selectAll,
		}, nil

	case "sqlite":
		return dialect{
			name: driver,
			createTable: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					product_id INTEGER PRIMARY KEY,
					total_quantity INTEGER,
					total_sale_amount DECIMAL(10, 2),
					last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`, table),
			upsert: fmt.Sprintf(`
				INSERT INTO %s (product_id, total_quantity, total_sale_amount, last_updated)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (product_id) DO UPDATE SET
					total_quantity = excluded.total_quantity,
					total_sale_amount = excluded.total_sale_amount,
					last_updated = CURRENT_TIMESTAMP`, table),
			selectAll: selectAll,
		}, nil

	default:
		return dialect{}, fmt.Errorf("no SQL dialect for driver %q", driver)
	}
}

// SQLSink writes the summary table through database/sql. Every upsert is a
// single statement, so a row is either fully written or not at all.
type SQLSink struct {
	DB      *sql.DB
	dialect dialect
}

var _ Sink = (*SQLSink)(nil)

// NewSQLSink builds a sink for driver "mysql", "sqlserver" or "sqlite".
// table must already be validated as a plain identifier.
func NewSQLSink(db *sql.DB, driver, table string) (*SQLSink, error) {
	d, err := dialectFor(driver, table)
	if err != nil {
		return nil, err
	}
	return &SQLSink{DB: db, dialect: d}, nil
}

func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("create summary table (%s): %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLSink) Upsert(ctx context.Context, agg models.ProductAggregate) error {
	_, err := s.DB.ExecContext(ctx, s.dialect.upsert,
		agg.ProductID,
		agg.TotalQuantity,
		agg.TotalSaleAmount.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", agg.ProductID, err)
	}
	return nil
}

func (s *SQLSink) Summary(ctx context.Context) ([]models.SummaryRow, error) {
	rows, err := s.DB.QueryContext(ctx, s.dialect.selectAll)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []models.SummaryRow
	for rows.Next() {
		var (
			r           models.SummaryRow
			lastUpdated interface{}
		)
		if err := rows.Scan(&r.ProductID, &r.TotalQuantity, &r.TotalSaleAmount, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		if lastUpdated != nil {
			t, err := utils.ConvertDateTime(lastUpdated)
			if err != nil {
				return nil, fmt.Errorf("product %d last_updated: %w", r.ProductID, err)
			}
			r.LastUpdated = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
