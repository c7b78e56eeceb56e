package etl

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BartekS5/salesetl/pkg/models"
)

// LoadReport is the per-row outcome of one Load call.
type LoadReport struct {
	Attempted int          `json:"attempted"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Failures  []RowFailure `json:"-"`
}

// Loader writes aggregates to a Sink one row at a time. A failing row is
// recorded and the loop moves on; in strict mode any failure makes Load
// return ErrLoadRows.
type Loader struct {
	sink   Sink
	strict bool
	logger zerolog.Logger
}

func NewLoader(sink Sink, strict bool, logger zerolog.Logger) *Loader {
	return &Loader{sink: sink, strict: strict, logger: logger}
}

func (l *Loader) Load(ctx context.Context, aggs []models.ProductAggregate) (LoadReport, error) {
	var report LoadReport

	if err := l.sink.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure destination schema: %w", err)
	}

	for _, agg := range aggs {
		// A cancelled or timed-out stage stops here; the rows already
		// written are complete and a retry rewrites them identically.
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load interrupted after %d of %d rows: %w", report.Attempted, len(aggs), err)
		}

		report.Attempted++
		if err := l.sink.Upsert(ctx, agg); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, RowFailure{ProductID: agg.ProductID, Err: err})
			l.logger.Error().Err(err).Int64("product_id", agg.ProductID).Msg("upsert failed")
			continue
		}
		report.Succeeded++
	}

	l.logger.Info().
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("load finished")

	if report.Failed > 0 && l.strict {
		return report, fmt.Errorf("%w: %d of %d", ErrLoadRows, report.Failed, report.Attempted)
	}
	return report, nil
}
