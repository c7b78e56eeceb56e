package etl

import (
	"context"
	"time"

	"github.com/BartekS5/salesetl/pkg/models"
)

// Extractor produces the batch of one source for a run date.
type Extractor interface {
	Source() models.Source
	Extract(ctx context.Context, runDate time.Time) (*models.ExtractionBatch, error)
}

// OnlineSalesStore is the relational store behind the online connector.
type OnlineSalesStore interface {
	ReadByDate(ctx context.Context, day time.Time) ([]models.RawSale, error)
	ReadAll(ctx context.Context) ([]models.RawSale, error)
}

// Sink is the reporting store the loader writes to. Each Upsert must be a
// single atomic write.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, agg models.ProductAggregate) error
	Summary(ctx context.Context) ([]models.SummaryRow, error)
}
