package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where a sale was recorded.
type Source string

const (
	SourceOnline  Source = "online"
	SourceInStore Source = "in-store"
)

// Column names shared by both sources and the summary table.
const (
	ColProductID  = "product_id"
	ColQuantity   = "quantity"
	ColSaleAmount = "sale_amount"
	ColSaleDate   = "sale_date"
)

// RequiredColumns are the fields a row needs to take part in aggregation.
var RequiredColumns = []string{ColProductID, ColQuantity, ColSaleAmount}

// RawSale is an extracted row before type coercion. Values keep whatever
// type the source produced; a nil value means the field is absent.
type RawSale struct {
	Values map[string]interface{}
	Source Source
	// Line is the 1-based data row number within its source (CSV line minus
	// the header, or query row order).
	Line int
}

// SaleRecord is a coerced, immutable sale.
type SaleRecord struct {
	ProductID  int64
	Quantity   int64
	SaleAmount decimal.Decimal
	SaleDate   time.Time
	Source     Source
}

// Outcome tells how an extraction batch was obtained.
type Outcome string

const (
	// OutcomeDated is a normal date-scoped read.
	OutcomeDated Outcome = "dated"
	// OutcomeFallbackOnError means the date-scoped read failed and the full
	// source was read instead.
	OutcomeFallbackOnError Outcome = "fallback-on-error"
	// OutcomeFallbackOnEmpty means the date filter matched nothing and the
	// full source was read instead.
	OutcomeFallbackOnEmpty Outcome = "fallback-on-empty"
)

// IsFallback reports whether the batch is degraded, lower-confidence data.
func (o Outcome) IsFallback() bool {
	return o == OutcomeFallbackOnError || o == OutcomeFallbackOnEmpty
}

// ExtractionBatch holds the rows one connector produced for a run date.
type ExtractionBatch struct {
	RunDate time.Time
	Source  Source
	Rows    []RawSale
	Outcome Outcome
	// Reason is the error that triggered an OutcomeFallbackOnError.
	Reason error
}

// ProductAggregate is the per-product total for one run.
type ProductAggregate struct {
	ProductID       int64           `json:"product_id"`
	TotalQuantity   int64           `json:"total_quantity"`
	TotalSaleAmount decimal.Decimal `json:"total_sale_amount"`
}

// SummaryRow is a persisted aggregate as read back from a sink.
type SummaryRow struct {
	ProductID       int64
	TotalQuantity   int64
	TotalSaleAmount decimal.Decimal
	LastUpdated     time.Time
}
