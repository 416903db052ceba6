package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

// Observer receives per-instrument sync events. Metrics collectors implement it.
type Observer interface {
	ObserveFallback(symbol string, from, to models.Provider)
	ObserveRowFailure(symbol string)
}

type nopObserver struct{}

func (nopObserver) ObserveFallback(string, models.Provider, models.Provider) {}
func (nopObserver) ObserveRowFailure(string)                                 {}

// RowResult is the outcome of converting and writing one candidate row.
// Exactly one of Point (written) or Err is meaningful.
type RowResult struct {
	Date  time.Time
	Point models.PricePoint
	Err   error
}

func (r RowResult) OK() bool { return r.Err == nil }

// Outcome summarizes one instrument's sync.
type Outcome struct {
	Symbol     string
	Name       string
	Provider   models.Provider
	Cutoff     time.Time
	Fetched    int
	Candidates int
	Written    int
	Rows       []RowResult
}

// Failures counts rows that could not be converted or written.
func (o *Outcome) Failures() int {
	n := 0
	for _, r := range o.Rows {
		if !r.OK() {
			n++
		}
	}
	return n
}

// Status distinguishes "up to date" from a delta that failed entirely.
func (o *Outcome) Status() models.SyncStatus {
	switch {
	case o.Written > 0:
		return models.StatusUpdated
	case o.Failures() == 0:
		return models.StatusUpToDate
	default:
		return models.StatusFailed
	}
}

type Options struct {
	// StartDate is the inclusive floor used when nothing is stored yet.
	StartDate time.Time
	// Providers are tried in order until one returns data.
	Providers []models.Provider
	Observer  Observer
	Logger    *zap.Logger
}

// Syncer brings one instrument's stored bars up to date.
type Syncer struct {
	fetcher   interfaces.FrameFetcher
	providers []models.Provider
	startDate time.Time
	observer  Observer
	logger    *zap.Logger
}

func NewSyncer(fetcher interfaces.FrameFetcher, opts Options) *Syncer {
	if len(opts.Providers) == 0 {
		opts.Providers = []models.Provider{models.AlphaVantage, models.Yahoo}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Syncer{
		fetcher:   fetcher,
		providers: opts.Providers,
		startDate: models.TradingDay(opts.StartDate),
		observer:  opts.Observer,
		logger:    opts.Logger.Named("sync"),
	}
}

// SyncInstrument fetches new bars for symbol and upserts them through sess.
// The caller owns sess and releases it.
//
// Errors: ErrMissingInstrument, ErrNoDataForInstrument (both isolated to this
// instrument) or ErrStoreUnavailable. Per-row failures are reported in the
// returned Outcome, never as an error.
func (s *Syncer) SyncInstrument(ctx context.Context, sess interfaces.StoreSession, symbol string) (*Outcome, error) {
	out := &Outcome{Symbol: symbol}
	log := s.logger.With(zap.String("symbol", symbol))

	inst, err := sess.InstrumentBySymbol(ctx, symbol)
	if err != nil {
		return out, fmt.Errorf("%w: lookup %s: %v", ErrStoreUnavailable, symbol, err)
	}
	if inst == nil {
		return out, fmt.Errorf("%w: %s", ErrMissingInstrument, symbol)
	}
	out.Name = inst.Name

	latest, found, err := sess.LatestTradeDate(ctx, inst.ID)
	if err != nil {
		return out, fmt.Errorf("%w: high-water mark for %s: %v", ErrStoreUnavailable, symbol, err)
	}
	keep := s.keepFrom(latest, found)
	out.Cutoff = keep

	frame, err := s.fetch(ctx, symbol)
	if err != nil {
		return out, err
	}
	out.Provider = frame.Provider
	out.Fetched = frame.Len()

	delta := make([]models.CandidateRow, 0)
	for _, row := range frame.Rows {
		if !row.Date.Before(keep) {
			delta = append(delta, row)
		}
	}
	out.Candidates = len(delta)
	if len(delta) == 0 {
		log.Info("up to date", zap.Time("cutoff", keep), zap.Stringer("provider", frame.Provider))
		return out, nil
	}

	for _, row := range delta {
		res := s.writeRow(ctx, sess, inst.ID, row)
		out.Rows = append(out.Rows, res)
		if res.OK() {
			out.Written++
			continue
		}
		s.observer.ObserveRowFailure(symbol)
		log.Warn("row skipped", zap.Error(res.Err))
	}

	if out.Written == 0 && ctx.Err() != nil {
		return out, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}

	log.Info("synced",
		zap.Stringer("provider", frame.Provider),
		zap.Int("fetched", out.Fetched),
		zap.Int("candidates", out.Candidates),
		zap.Int("written", out.Written),
		zap.Int("failures", out.Failures()))
	return out, nil
}

// keepFrom returns the first trading day eligible for insertion: the day
// after the stored high-water mark, or the configured start date.
func (s *Syncer) keepFrom(latest time.Time, found bool) time.Time {
	if !found {
		return s.startDate
	}
	return models.TradingDay(latest).AddDate(0, 0, 1)
}

// fetch tries each provider once, in order.
func (s *Syncer) fetch(ctx context.Context, symbol string) (*models.CandidateFrame, error) {
	var causes []error
	for i, p := range s.providers {
		frame, err := s.fetcher.Fetch(ctx, symbol, p)
		if err == nil && frame.Len() > 0 {
			if i > 0 {
				s.observer.ObserveFallback(symbol, s.providers[0], p)
			}
			return frame, nil
		}
		if err == nil {
			err = fmt.Errorf("%s returned an empty frame", p)
		}
		causes = append(causes, err)
		if i+1 < len(s.providers) {
			s.logger.Info("falling back",
				zap.String("symbol", symbol),
				zap.Stringer("from", p),
				zap.Stringer("to", s.providers[i+1]))
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNoDataForInstrument, symbol, errors.Join(causes...))
}

func (s *Syncer) writeRow(ctx context.Context, sess interfaces.StoreSession, instrumentID int64, row models.CandidateRow) RowResult {
	p, err := ToPricePoint(instrumentID, row)
	if err != nil {
		return RowResult{Date: row.Date, Err: err}
	}
	if err := sess.UpsertPricePoint(ctx, p); err != nil {
		return RowResult{Date: row.Date, Err: fmt.Errorf("upsert %s: %w", models.FormatDay(row.Date), err)}
	}
	return RowResult{Date: row.Date, Point: p}
}
