// Package interfaces holds the consumer-side contracts between the sync
// engine, the analytics engine and their collaborators.
package interfaces

import (
	"context"
	"time"

	"github.com/kjannette/stocksync/internal/models"
)

// PriceStore is the persistence gateway for a whole batch run.
type PriceStore interface {
	// Instruments lists the registry ordered by display name.
	Instruments(ctx context.Context) ([]models.Instrument, error)
	// Acquire checks out a session. Callers must Release it.
	Acquire(ctx context.Context) (StoreSession, error)
}

// StoreSession is scoped to one instrument's sync.
type StoreSession interface {
	// InstrumentBySymbol returns nil, nil when the symbol is not registered.
	InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	// LatestTradeDate returns the high-water mark; ok is false when nothing is stored.
	LatestTradeDate(ctx context.Context, instrumentID int64) (date time.Time, ok bool, err error)
	// UpsertPricePoint inserts or overwrites the bar keyed by (instrument, trade date).
	UpsertPricePoint(ctx context.Context, p models.PricePoint) error
	Release()
}

// SeriesReader serves stored series to the analytics engine.
type SeriesReader interface {
	InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	// Series returns bars ascending by date; zero from/to leave that side open.
	Series(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
	// Latest returns nil, nil when the symbol has no bars.
	Latest(ctx context.Context, symbol string) (*models.LatestPrice, error)
}
