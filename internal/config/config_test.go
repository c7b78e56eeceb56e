package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SINK_DSN", "root:secret@tcp(localhost:3306)/sales_warehouse?parseTime=true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Sink.Driver)
	assert.Equal(t, "product_sales_summary", cfg.Sink.Table)
	assert.Equal(t, "online_sales", cfg.Online.Table)
	assert.Equal(t, "in_store_sales.csv", cfg.InStore.CSVPath)
	assert.Equal(t, 1, cfg.Run.StageRetries)
	assert.Equal(t, 5*time.Second, cfg.Run.RetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Run.ExtractTimeout)
	assert.False(t, cfg.Run.Strict)
	assert.Equal(t, "postgres://postgres:@localhost:5432/sales_db?sslmode=disable", cfg.Online.ConnectionString())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SINK_DRIVER", "SQLite")
	t.Setenv("SINK_DSN", "file:summary.db")
	t.Setenv("STRICT_LOAD", "true")
	t.Setenv("STAGE_RETRIES", "0")
	t.Setenv("LOAD_TIMEOUT", "30s")
	t.Setenv("ONLINE_DATABASE_URL", "postgres://etl@db:5432/sales_db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Sink.Driver)
	assert.True(t, cfg.Run.Strict)
	assert.Equal(t, 0, cfg.Run.StageRetries)
	assert.Equal(t, 30*time.Second, cfg.Run.LoadTimeout)
	assert.Equal(t, "postgres://etl@db:5432/sales_db", cfg.Online.ConnectionString())
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		t.Setenv("SINK_DSN", "")
		_, err := Load()
		assert.ErrorContains(t, err, "SINK_DSN")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("SINK_DSN", "x")
		t.Setenv("SINK_DRIVER", "oracle")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported SINK_DRIVER")
	})

	t.Run("table injection", func(t *testing.T) {
		t.Setenv("SINK_DSN", "x")
		t.Setenv("SINK_TABLE", "summary; DROP TABLE x")
		_, err := Load()
		assert.ErrorContains(t, err, "SINK_TABLE")
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Setenv("SINK_DSN", "x")
		t.Setenv("STAGE_RETRIES", "-1")
		_, err := Load()
		assert.ErrorContains(t, err, "STAGE_RETRIES")
	})
}
