package etl

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// AggregationStats describes what the aggregator did with its input.
type AggregationStats struct {
	InputRows      int            `json:"input_rows"`
	DroppedRows    int            `json:"dropped_rows"`
	DroppedByField map[string]int `json:"dropped_by_field,omitempty"`
	NegativeRows   int            `json:"negative_rows"`
	Products       int            `json:"products"`
}

// Aggregator merges extraction batches into per-product totals.
type Aggregator struct {
	validator *Validator
	logger    zerolog.Logger
}

func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		validator: NewValidator(),
		logger:    logger,
	}
}

// Aggregate concatenates the batches in order, drops incomplete rows,
// coerces the rest and sums quantity and amount per product. The result is
// sorted by product ID. A row that passes the completeness check but does
// not coerce fails the whole call with a *CoercionError.
func (a *Aggregator) Aggregate(ctx context.Context, batches ...*models.ExtractionBatch) ([]models.ProductAggregate, AggregationStats, error) {
	stats := AggregationStats{DroppedByField: map[string]int{}}
	totals := make(map[int64]*models.ProductAggregate)

	for _, batch := range batches {
		if batch == nil {
			continue
		}
		for _, row := range batch.Rows {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			stats.InputRows++

			if field, missing := a.validator.MissingField(row); missing {
				stats.DroppedRows++
				stats.DroppedByField[field]++
				a.logger.Debug().Str("source", string(row.Source)).Int("line", row.Line).Str("field", field).Msg("dropping incomplete row")
				continue
			}

			rec, err := coerce(row)
			if err != nil {
				return nil, stats, err
			}
			if rec.Quantity < 0 || rec.SaleAmount.IsNegative() {
				stats.NegativeRows++
			}

			agg, ok := totals[rec.ProductID]
			if !ok {
				agg = &models.ProductAggregate{ProductID: rec.ProductID, TotalSaleAmount: decimal.Zero}
				totals[rec.ProductID] = agg
			}
			sum, ok := addInt64(agg.TotalQuantity, rec.Quantity)
			if !ok {
				return nil, stats, &CoercionError{
					Field:  models.ColQuantity,
					Value:  rec.Quantity,
					Source: row.Source,
					Line:   row.Line,
					Err:    fmt.Errorf("total quantity for product %d overflows int64", rec.ProductID),
				}
			}
			agg.TotalQuantity = sum
			agg.TotalSaleAmount = agg.TotalSaleAmount.Add(rec.SaleAmount)
		}
	}

	out := make([]models.ProductAggregate, 0, len(totals))
	for _, agg := range totals {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	stats.Products = len(out)

	if stats.DroppedRows > 0 {
		a.logger.Warn().Int("dropped", stats.DroppedRows).Interface("by_field", stats.DroppedByField).Msg("dropped rows missing required fields")
	}
	if stats.NegativeRows > 0 {
		a.logger.Warn().Int("rows", stats.NegativeRows).Msg("rows with negative quantity or amount were aggregated as-is")
	}
	return out, stats, nil
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func coerce(row models.RawSale) (models.SaleRecord, error) {
	fail := func(field string, err error) error {
		return &CoercionError{Field: field, Value: row.Values[field], Source: row.Source, Line: row.Line, Err: err}
	}

	productID, err := utils.ConvertToInt64(row.Values[models.ColProductID])
	if err != nil {
		return models.SaleRecord{}, fail(models.ColProductID, err)
	}
	quantity, err := utils.ConvertToInt64(row.Values[models.ColQuantity])
	if err != nil {
		return models.SaleRecord{}, fail(models.ColQuantity, err)
	}
	amount, err := utils.ConvertToDecimal(row.Values[models.ColSaleAmount])
	if err != nil {
		return models.SaleRecord{}, fail(models.ColSaleAmount, err)
	}

	rec := models.SaleRecord{
		ProductID:  productID,
		Quantity:   quantity,
		SaleAmount: amount,
		Source:     row.Source,
	}
	// sale_date is not part of the aggregate key; keep it when readable.
	if day, err := utils.ConvertDateTime(row.Values[models.ColSaleDate]); err == nil {
		rec.SaleDate = day
	}
	return rec, nil
}
