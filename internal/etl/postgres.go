package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BartekS5/salesetl/pkg/models"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSalesStore reads the online_sales table.
type PostgresSalesStore struct {
	q     Querier
	table string
}

var _ OnlineSalesStore = (*PostgresSalesStore)(nil)

// NewPostgresSalesStore builds the store. table must already be validated
// as a plain identifier.
func NewPostgresSalesStore(q Querier, table string) *PostgresSalesStore {
	return &PostgresSalesStore{q: q, table: table}
}

func (s *PostgresSalesStore) ReadByDate(ctx context.Context, day time.Time) ([]models.RawSale, error) {
	query := fmt.Sprintf(`
		SELECT product_id, quantity, sale_amount, sale_date
		FROM %s
		WHERE sale_date = $1
		ORDER BY sale_id`, s.table)
	return s.read(ctx, query, day)
}

func (s *PostgresSalesStore) ReadAll(ctx context.Context) ([]models.RawSale, error) {
	query := fmt.Sprintf(`
		SELECT product_id, quantity, sale_amount, sale_date
		FROM %s
		ORDER BY sale_id`, s.table)
	return s.read(ctx, query)
}

func (s *PostgresSalesStore) read(ctx context.Context, query string, args ...any) ([]models.RawSale, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query online sales: %w", err)
	}
	defer rows.Close()

	var out []models.RawSale
	for rows.Next() {
		var (
			productID, quantity *int64
			amount              decimal.NullDecimal
			saleDate            *time.Time
		)
		if err := rows.Scan(&productID, &quantity, &amount, &saleDate); err != nil {
			return nil, fmt.Errorf("scan online sale: %w", err)
		}

		values := map[string]interface{}{
			models.ColProductID:  nil,
			models.ColQuantity:   nil,
			models.ColSaleAmount: nil,
			models.ColSaleDate:   nil,
		}
		if productID != nil {
			values[models.ColProductID] = *productID
		}
		if quantity != nil {
			values[models.ColQuantity] = *quantity
		}
		if amount.Valid {
			values[models.ColSaleAmount] = amount.Decimal
		}
		if saleDate != nil {
			values[models.ColSaleDate] = *saleDate
		}

		out = append(out, models.RawSale{
			Values: values,
			Source: models.SourceOnline,
			Line:   len(out) + 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate online sales: %w", err)
	}
	return out, nil
}

// RelationalExtractor is the online-sales connector. A failed dated query
// degrades to a full-table read; only when that also fails does it report
// an ExtractionError.
type RelationalExtractor struct {
	store  OnlineSalesStore
	logger zerolog.Logger
}

var _ Extractor = (*RelationalExtractor)(nil)

func NewRelationalExtractor(store OnlineSalesStore, logger zerolog.Logger) *RelationalExtractor {
	return &RelationalExtractor{
		store:  store,
		logger: logger.With().Str("source", string(models.SourceOnline)).Logger(),
	}
}

func (e *RelationalExtractor) Source() models.Source { return models.SourceOnline }

func (e *RelationalExtractor) Extract(ctx context.Context, runDate time.Time) (*models.ExtractionBatch, error) {
	batch := &models.ExtractionBatch{
		RunDate: runDate,
		Source:  models.SourceOnline,
		Outcome: models.OutcomeDated,
	}

	rows, err := e.store.ReadByDate(ctx, runDate)
	if err == nil {
		batch.Rows = rows
		e.logger.Info().Int("rows", len(rows)).Msg("extracted dated online sales")
		return batch, nil
	}

	e.logger.Warn().Err(err).Msg("dated query failed, falling back to full table read")

	all, allErr := e.store.ReadAll(ctx)
	if allErr != nil {
		return nil, &ExtractionError{Source: models.SourceOnline, Err: errors.Join(err, allErr)}
	}

	batch.Rows = all
	batch.Outcome = models.OutcomeFallbackOnError
	batch.Reason = err
	e.logger.Warn().Int("rows", len(all)).Str("outcome", string(batch.Outcome)).Msg("extracted online sales without date filter")
	return batch, nil
}
