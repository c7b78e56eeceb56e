package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// FileExtractor is the in-store connector. It reads a CSV with a header row
// and keeps the rows whose sale_date is the run date; when none match it
// returns the whole file instead.
type FileExtractor struct {
	path   string
	logger zerolog.Logger
}

var _ Extractor = (*FileExtractor)(nil)

func NewFileExtractor(path string, logger zerolog.Logger) *FileExtractor {
	return &FileExtractor{
		path:   path,
		logger: logger.With().Str("source", string(models.SourceInStore)).Str("file", path).Logger(),
	}
}

func (e *FileExtractor) Source() models.Source { return models.SourceInStore }

func (e *FileExtractor) Extract(ctx context.Context, runDate time.Time) (*models.ExtractionBatch, error) {
	all, err := e.readAll(ctx)
	if err != nil {
		return nil, &ExtractionError{Source: models.SourceInStore, Err: err}
	}

	batch := &models.ExtractionBatch{
		RunDate: runDate,
		Source:  models.SourceInStore,
		Outcome: models.OutcomeDated,
	}

	unparsed := 0
	for _, row := range all {
		day, err := utils.ConvertDateTime(row.Values[models.ColSaleDate])
		if err != nil {
			unparsed++
			continue
		}
		if utils.SameDay(day, runDate) {
			batch.Rows = append(batch.Rows, row)
		}
	}
	if unparsed > 0 {
		e.logger.Warn().Int("rows", unparsed).Msg("rows with unreadable sale_date never match a run date")
	}

	if len(batch.Rows) == 0 {
		batch.Rows = all
		batch.Outcome = models.OutcomeFallbackOnEmpty
		e.logger.Warn().
			Int("rows", len(all)).
			Str("outcome", string(batch.Outcome)).
			Str("run_date", runDate.Format(utils.DateLayout)).
			Msg("no in-store sales for run date, using the full file")
		return batch, nil
	}

	e.logger.Info().Int("rows", len(batch.Rows)).Int("file_rows", len(all)).Msg("extracted dated in-store sales")
	return batch, nil
}

func (e *FileExtractor) readAll(ctx context.Context) ([]models.RawSale, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", e.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv headers: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if err := requireColumns(headers); err != nil {
		return nil, err
	}

	var rows []models.RawSale
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", len(rows)+1, err)
		}

		values := make(map[string]interface{}, len(headers))
		for j, header := range headers {
			cell := strings.TrimSpace(record[j])
			if cell == "" {
				values[header] = nil
				continue
			}
			values[header] = cell
		}

		rows = append(rows, models.RawSale{
			Values: values,
			Source: models.SourceInStore,
			Line:   len(rows) + 1,
		})
	}
	return rows, nil
}

func requireColumns(headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, col := range []string{models.ColProductID, models.ColQuantity, models.ColSaleAmount, models.ColSaleDate} {
		if !present[col] {
			return fmt.Errorf("csv is missing required column %q", col)
		}
	}
	return nil
}
