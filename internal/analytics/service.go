package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

// Params selects the windows used by Analyze. Zero fields take defaults.
type Params struct {
	SMAWindow        int
	EMASpan          int
	VolatilityWindow int
	AbruptThreshold  float64
}

func (p Params) withDefaults() Params {
	if p.SMAWindow <= 0 {
		p.SMAWindow = DefaultWindow
	}
	if p.EMASpan <= 0 {
		p.EMASpan = DefaultWindow
	}
	if p.VolatilityWindow <= 0 {
		p.VolatilityWindow = DefaultWindow
	}
	if p.AbruptThreshold <= 0 {
		p.AbruptThreshold = DefaultAbruptThreshold
	}
	return p
}

// Report bundles every derived metric for one instrument.
type Report struct {
	Frame       *Frame
	Params      Params
	AbruptMoves []AbruptMove
	BuySignals  []time.Time
}

// Service loads stored series and runs the pure transforms over them.
type Service struct {
	reader interfaces.SeriesReader
	logger *zap.Logger
}

func NewService(reader interfaces.SeriesReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: reader, logger: logger.Named("analytics")}
}

func (s *Service) Instrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	inst, err := s.reader.InstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", symbol, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return inst, nil
}

// CurrentPrice returns the most recent stored close, or nil when the
// instrument has no bars.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (*models.LatestPrice, error) {
	if _, err := s.Instrument(ctx, symbol); err != nil {
		return nil, err
	}
	lp, err := s.reader.Latest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", symbol, err)
	}
	return lp, nil
}

// Frame loads symbol's bars in [from, to]; zero bounds are open.
func (s *Service) Frame(ctx context.Context, symbol string, from, to time.Time) (*Frame, error) {
	inst, err := s.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	points, err := s.reader.Series(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", symbol, err)
	}
	return FromPoints(inst.Symbol, inst.Name, points), nil
}

// Analyze computes SMA, EMA, volatility/risk, abrupt moves and buy signals.
func (s *Service) Analyze(ctx context.Context, symbol string, from, to time.Time, p Params) (*Report, error) {
	p = p.withDefaults()
	f, err := s.Frame(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	f = SMA(f, p.SMAWindow)
	f = EMA(f, p.EMASpan)
	f = VolatilityRisk(f, p.VolatilityWindow)
	f, moves := AbruptChanges(f, p.AbruptThreshold)
	return &Report{
		Frame:       f,
		Params:      p,
		AbruptMoves: moves,
		BuySignals:  BestTimeToInvest(f, p.SMAWindow),
	}, nil
}

// Correlation aligns the close series of symbols on common dates and
// returns their Pearson matrix. Unknown or empty instruments are skipped.
func (s *Service) Correlation(ctx context.Context, symbols []string) (*Matrix, error) {
	series, err := s.closeSeries(ctx, symbols, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return Correlate(Align(series...)), nil
}

// Comparison returns the aligned close table for symbols within [from, to].
func (s *Service) Comparison(ctx context.Context, symbols []string, from, to time.Time) (*Table, error) {
	series, err := s.closeSeries(ctx, symbols, from, to)
	if err != nil {
		return nil, err
	}
	return Align(series...), nil
}

func (s *Service) closeSeries(ctx context.Context, symbols []string, from, to time.Time) ([]NamedSeries, error) {
	var out []NamedSeries
	seen := make(map[string]bool)
	for _, sym := range symbols {
		f, err := s.Frame(ctx, sym, from, to)
		if errors.Is(err, ErrUnknownInstrument) {
			s.logger.Debug("skipping unknown instrument", zap.String("symbol", sym))
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Empty() {
			s.logger.Debug("skipping instrument with no data", zap.String("symbol", sym))
			continue
		}
		ns := CloseSeries(f)
		if seen[ns.Name] {
			ns.Name = fmt.Sprintf("%s (%s)", ns.Name, f.Symbol)
		}
		seen[ns.Name] = true
		out = append(out, ns)
	}
	return out, nil
}
