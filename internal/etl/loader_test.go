package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/salesetl/pkg/models"
)

func aggs(ids ...int64) []models.ProductAggregate {
	out := make([]models.ProductAggregate, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ProductAggregate{ProductID: id, TotalQuantity: 1, TotalSaleAmount: decimal.NewFromInt(10)})
	}
	return out
}

func TestLoader_PartialFailureContinues(t *testing.T) {
	sink := newMemorySink()
	sink.refuse[2] = true

	report, err := NewLoader(sink, false, zerolog.Nop()).Load(context.Background(), aggs(1, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].ProductID)

	rows, _ := sink.Summary(context.Background())
	assert.Len(t, rows, 2)
}

func TestLoader_StrictMode(t *testing.T) {
	sink := newMemorySink()
	sink.refuse[1] = true

	report, err := NewLoader(sink, true, zerolog.Nop()).Load(context.Background(), aggs(1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadRows)
	assert.Equal(t, 2, report.Attempted, "strict mode still attempts every row")
	assert.Equal(t, 1, report.Succeeded)
}

func TestLoader_SchemaFailure(t *testing.T) {
	sink := newMemorySink()
	sink.schemaErr = errors.New("access denied")

	_, err := NewLoader(sink, false, zerolog.Nop()).Load(context.Background(), aggs(1))
	assert.ErrorContains(t, err, "access denied")
	assert.Zero(t, sink.upserts)
}

func TestLoader_EmptyInput(t *testing.T) {
	report, err := NewLoader(newMemorySink(), true, zerolog.Nop()).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
}

func TestLoader_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := newMemorySink()
	_, err := NewLoader(sink, false, zerolog.Nop()).Load(ctx, aggs(1, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.upserts)
}
