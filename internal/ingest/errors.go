package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/stocksync/internal/models"
)

var (
	// ErrMissingInstrument means the symbol has no row in the instrument table.
	ErrMissingInstrument = errors.New("instrument not registered")
	// ErrNoDataForInstrument means neither provider returned usable data.
	ErrNoDataForInstrument = errors.New("no data from any provider")
	// ErrStoreUnavailable wraps storage failures that should stop the whole run.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RowConversionError reports a single provider row that could not be turned
// into a PricePoint. It never aborts the instrument.
type RowConversionError struct {
	Date  time.Time
	Field string
	Value any
	Err   error
}

func (e *RowConversionError) Error() string {
	return fmt.Sprintf("row %s: field %s value %v: %v", models.FormatDay(e.Date), e.Field, e.Value, e.Err)
}

func (e *RowConversionError) Unwrap() error { return e.Err }
