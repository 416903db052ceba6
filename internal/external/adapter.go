package external

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

// ErrNoData is returned whenever a provider yields nothing usable. Transport,
// decode and upstream errors are all downgraded to it so callers only ever
// need to decide whether to try the next provider.
var ErrNoData = errors.New("no data")

// Adapter routes fetches to the registered source for each provider and
// normalizes the response onto the canonical OHLCV fields.
type Adapter struct {
	sources map[models.Provider]interfaces.SeriesSource
	logger  *zap.Logger
}

var _ interfaces.FrameFetcher = (*Adapter)(nil)

func NewAdapter(logger *zap.Logger, sources ...interfaces.SeriesSource) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		sources: make(map[models.Provider]interfaces.SeriesSource, len(sources)),
		logger:  logger.Named("provider"),
	}
	for _, s := range sources {
		a.sources[s.Provider()] = s
	}
	return a
}

// Fetch retrieves the full daily history for symbol from provider. Any
// failure is logged and reported as ErrNoData.
func (a *Adapter) Fetch(ctx context.Context, symbol string, provider models.Provider) (*models.CandidateFrame, error) {
	src, ok := a.sources[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not registered", ErrNoData, provider)
	}

	raw, err := src.FetchRaw(ctx, symbol)
	if err != nil {
		a.logger.Warn("fetch failed",
			zap.String("symbol", symbol),
			zap.Stringer("provider", provider),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s from %s: %v", ErrNoData, symbol, provider, err)
	}

	frame, err := Normalize(raw)
	if err != nil {
		a.logger.Warn("unusable response",
			zap.String("symbol", symbol),
			zap.Stringer("provider", provider),
			zap.Error(err))
		return nil, err
	}

	a.logger.Debug("fetched",
		zap.String("symbol", symbol),
		zap.Stringer("provider", provider),
		zap.Int("rows", frame.Len()))
	return frame, nil
}

// Normalize maps a raw provider series onto CandidateRows using the
// provider's column table. Rows missing any recognized column are dropped;
// a series with no surviving rows is ErrNoData. Output is ascending with one
// row per date, the later occurrence winning.
func Normalize(raw *models.RawSeries) (*models.CandidateFrame, error) {
	if raw == nil || len(raw.Rows) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrNoData)
	}
	cols, ok := raw.Provider.Columns()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoData, raw.Provider)
	}

	byDate := make(map[int64]models.CandidateRow, len(raw.Rows))
	for _, r := range raw.Rows {
		if !hasColumns(r.Values, cols) {
			continue
		}
		day := models.TradingDay(r.Date)
		byDate[day.Unix()] = models.CandidateRow{
			Date:   day,
			Open:   r.Values[cols.Open],
			High:   r.Values[cols.High],
			Low:    r.Values[cols.Low],
			Close:  r.Values[cols.Close],
			Volume: r.Values[cols.Volume],
		}
	}
	if len(byDate) == 0 {
		return nil, fmt.Errorf("%w: no rows carry the %s columns", ErrNoData, raw.Provider)
	}

	frame := &models.CandidateFrame{
		Provider: raw.Provider,
		Symbol:   raw.Symbol,
		Rows:     make([]models.CandidateRow, 0, len(byDate)),
	}
	for _, row := range byDate {
		frame.Rows = append(frame.Rows, row)
	}
	sort.Slice(frame.Rows, func(i, j int) bool {
		return frame.Rows[i].Date.Before(frame.Rows[j].Date)
	})
	return frame, nil
}

func hasColumns(values map[string]any, cols models.ColumnSet) bool {
	for _, c := range cols.All() {
		if _, ok := values[c]; !ok {
			return false
		}
	}
	return true
}
