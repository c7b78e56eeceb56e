package etl

import (
	"errors"
	"fmt"

	"github.com/BartekS5/salesetl/pkg/models"
)

var (
	// ErrExtraction marks a connector that produced no rows at all, as
	// opposed to one that legitimately found none.
	ErrExtraction = errors.New("extraction failed")
	// ErrCoercion marks a retained row whose fields do not convert. It is
	// permanent: retrying the same data fails the same way.
	ErrCoercion = errors.New("type coercion failed")
	// ErrLoadRows is returned in strict mode when any row upsert failed.
	ErrLoadRows = errors.New("row upserts failed")
	// ErrCancelled is returned when the caller cancels between stages.
	ErrCancelled = errors.New("run cancelled")
)

// ExtractionError wraps the cause of a failed connector.
type ExtractionError struct {
	Source models.Source
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// CoercionError identifies the offending row and field.
type CoercionError struct {
	Field  string
	Value  interface{}
	Source models.Source
	Line   int
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s row %d: field %s value %v: %v", e.Source, e.Line, e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() []error { return []error{ErrCoercion, e.Err} }

// RowFailure is one aggregate the sink refused.
type RowFailure struct {
	ProductID int64
	Err       error
}

// StageError is the terminal error of a stage after its retries.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	return !errors.Is(err, ErrCoercion) && !errors.Is(err, ErrCancelled)
}
