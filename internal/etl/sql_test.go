package etl

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/salesetl/pkg/database"
	"github.com/BartekS5/salesetl/pkg/models"
)

func newSQLiteSink(t *testing.T) (*SQLSink, *sql.DB) {
	t.Helper()
	db, err := database.ConnectSQL(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sink, err := NewSQLSink(db, "sqlite", "product_sales_summary")
	require.NoError(t, err)
	require.NoError(t, sink.EnsureSchema(context.Background()))
	return sink, db
}

func TestSQLSink_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	sink, db := newSQLiteSink(t)

	require.NoError(t, sink.Upsert(ctx, models.ProductAggregate{ProductID: 5, TotalQuantity: 7, TotalSaleAmount: decimal.RequireFromString("70.00")}))
	require.NoError(t, sink.Upsert(ctx, models.ProductAggregate{ProductID: 5, TotalQuantity: 12, TotalSaleAmount: decimal.RequireFromString("120.50")}))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM product_sales_summary WHERE product_id = 5`).Scan(&n))
	assert.Equal(t, 1, n)

	rows, err := sink.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0].ProductID)
	assert.Equal(t, int64(12), rows[0].TotalQuantity)
	assert.True(t, rows[0].TotalSaleAmount.Equal(decimal.RequireFromString("120.5")), "got %s", rows[0].TotalSaleAmount)
	assert.False(t, rows[0].LastUpdated.IsZero())
}

func TestSQLSink_EnsureSchemaIsIdempotent(t *testing.T) {
	sink, _ := newSQLiteSink(t)
	require.NoError(t, sink.EnsureSchema(context.Background()))
}

func TestSQLSink_SummaryOrdered(t *testing.T) {
	ctx := context.Background()
	sink, _ := newSQLiteSink(t)

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, sink.Upsert(ctx, models.ProductAggregate{ProductID: id, TotalQuantity: id, TotalSaleAmount: decimal.NewFromInt(id)}))
	}
	rows, err := sink.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].ProductID)
	assert.Equal(t, int64(3), rows[2].ProductID)
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"mysql", "sqlserver", "sqlite"} {
		d, err := dialectFor(driver, "summary")
		require.NoError(t, err, driver)
		assert.Contains(t, d.createTable, "summary")
		assert.Contains(t, d.upsert, "last_updated")
	}

	mysqlDialect, err := dialectFor("mysql", "summary")
	require.NoError(t, err)
	assert.Contains(t, mysqlDialect.upsert, "AS new")
	assert.Contains(t, mysqlDialect.upsert, "total_quantity = new.total_quantity")
	assert.NotContains(t, mysqlDialect.upsert, "VALUES(")

	_, err = dialectFor("oracle", "summary")
	assert.ErrorContains(t, err, `"oracle"`)
}
