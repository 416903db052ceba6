package interfaces

import (
	"context"

	"github.com/kjannette/stocksync/internal/models"
)

// SeriesSource fetches the raw daily series of one symbol from one provider.
type SeriesSource interface {
	Provider() models.Provider
	FetchRaw(ctx context.Context, symbol string) (*models.RawSeries, error)
}

// FrameFetcher is the provider adapter as seen by the sync controller.
type FrameFetcher interface {
	Fetch(ctx context.Context, symbol string, provider models.Provider) (*models.CandidateFrame, error)
}
