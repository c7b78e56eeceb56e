package etl

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/salesetl/pkg/database"
	"github.com/BartekS5/salesetl/pkg/models"
)

type stubStore struct {
	dated, all       []models.RawSale
	datedErr, allErr error
	allCalls         int
}

func (s *stubStore) ReadByDate(context.Context, time.Time) ([]models.RawSale, error) {
	return s.dated, s.datedErr
}

func (s *stubStore) ReadAll(context.Context) ([]models.RawSale, error) {
	s.allCalls++
	return s.all, s.allErr
}

func TestRelationalExtractor_Dated(t *testing.T) {
	store := &stubStore{dated: []models.RawSale{raw(models.SourceOnline, 1, int64(1), int64(1), "1", day)}}

	b, err := NewRelationalExtractor(store, zerolog.Nop()).Extract(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDated, b.Outcome)
	assert.Len(t, b.Rows, 1)
	assert.Zero(t, store.allCalls)
}

func TestRelationalExtractor_EmptyDateIsNotAFallback(t *testing.T) {
	store := &stubStore{all: []models.RawSale{raw(models.SourceOnline, 1, int64(1), int64(1), "1", day)}}

	b, err := NewRelationalExtractor(store, zerolog.Nop()).Extract(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDated, b.Outcome)
	assert.Empty(t, b.Rows)
	assert.Zero(t, store.allCalls)
}

func TestRelationalExtractor_FallbackOnError(t *testing.T) {
	cause := errors.New("syntax error at or near")
	store := &stubStore{
		datedErr: cause,
		all: []models.RawSale{
			raw(models.SourceOnline, 1, int64(1), int64(1), "1", day),
			raw(models.SourceOnline, 2, int64(2), int64(1), "1", day.AddDate(0, 0, 1)),
		},
	}

	b, err := NewRelationalExtractor(store, zerolog.Nop()).Extract(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFallbackOnError, b.Outcome)
	assert.Equal(t, cause, b.Reason)
	assert.Len(t, b.Rows, 2)
}

func TestRelationalExtractor_BothReadsFail(t *testing.T) {
	store := &stubStore{datedErr: errors.New("dated"), allErr: errors.New("connection refused")}

	_, err := NewRelationalExtractor(store, zerolog.Nop()).Extract(context.Background(), day)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, models.SourceOnline, ee.Source)
	assert.ErrorContains(t, err, "connection refused")
}

// Runs against a real PostgreSQL when ONLINE_DATABASE_URL is set.
func TestPostgresSalesStore_Integration(t *testing.T) {
	dsn := os.Getenv("ONLINE_DATABASE_URL")
	if dsn == "" {
		t.Skip("ONLINE_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	const table = "online_sales_it"
	defer pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)

	require.NoError(t, NewProvisioner(pool, table, zerolog.Nop()).Provision(ctx, SampleOnlineSales, true))

	store := NewPostgresSalesStore(pool, table)
	rows, err := store.ReadByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(101), rows[0].Values[models.ColProductID])

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(SampleOnlineSales))

	// Provisioning again with reset leaves exactly the seed rows.
	require.NoError(t, NewProvisioner(pool, table, zerolog.Nop()).Provision(ctx, SampleOnlineSales, true))
	all, err = store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(SampleOnlineSales))
}
