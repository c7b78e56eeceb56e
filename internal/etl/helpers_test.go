package etl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BartekS5/salesetl/pkg/models"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func raw(src models.Source, line int, productID, quantity, amount, saleDate interface{}) models.RawSale {
	return models.RawSale{
		Values: map[string]interface{}{
			models.ColProductID:  productID,
			models.ColQuantity:   quantity,
			models.ColSaleAmount: amount,
			models.ColSaleDate:   saleDate,
		},
		Source: src,
		Line:   line,
	}
}

func batch(src models.Source, rows ...models.RawSale) *models.ExtractionBatch {
	return &models.ExtractionBatch{RunDate: day, Source: src, Rows: rows, Outcome: models.OutcomeDated}
}

// fakeExtractor returns a fixed batch, or fails the first `failures` calls.
type fakeExtractor struct {
	source   models.Source
	rows     []models.RawSale
	failures int
	err      error
	delay    time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Source() models.Source { return f.source }

func (f *fakeExtractor) Extract(ctx context.Context, runDate time.Time) (*models.ExtractionBatch, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &ExtractionError{Source: f.source, Err: ctx.Err()}
		}
	}
	if call <= f.failures {
		err := f.err
		if err == nil {
			err = errors.New("connection refused")
		}
		return nil, &ExtractionError{Source: f.source, Err: err}
	}
	return &models.ExtractionBatch{RunDate: runDate, Source: f.source, Rows: f.rows, Outcome: models.OutcomeDated}, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memorySink keeps the summary in a map and can be told to refuse products.
type memorySink struct {
	mu        sync.Mutex
	rows      map[int64]models.SummaryRow
	refuse    map[int64]bool
	schemaErr error
	upserts   int
}

func newMemorySink() *memorySink {
	return &memorySink{rows: map[int64]models.SummaryRow{}, refuse: map[int64]bool{}}
}

func (m *memorySink) EnsureSchema(context.Context) error { return m.schemaErr }

func (m *memorySink) Upsert(_ context.Context, agg models.ProductAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.refuse[agg.ProductID] {
		return errors.New("constraint violation")
	}
	m.rows[agg.ProductID] = models.SummaryRow{
		ProductID:       agg.ProductID,
		TotalQuantity:   agg.TotalQuantity,
		TotalSaleAmount: agg.TotalSaleAmount,
		LastUpdated:     time.Now(),
	}
	return nil
}

func (m *memorySink) Summary(context.Context) ([]models.SummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SummaryRow, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}
