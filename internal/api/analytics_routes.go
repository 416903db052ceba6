package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

type analyticsRow struct {
	Date       string   `json:"date"`
	Close      float64  `json:"close"`
	SMA        *float64 `json:"sma"`
	EMA        *float64 `json:"ema"`
	Volatility *float64 `json:"volatility"`
	Risk       *float64 `json:"risk"`
	PctChange  *float64 `json:"pctChange"`
}

type abruptJSON struct {
	Date      string  `json:"date"`
	Close     float64 `json:"close"`
	PctChange float64 `json:"pctChange"`
}

type analyticsResponse struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Params      analyticsParams `json:"params"`
	Rows        []analyticsRow  `json:"rows"`
	AbruptMoves []abruptJSON    `json:"abruptMoves"`
	BuySignals  []string        `json:"buySignals"`
}

type analyticsParams struct {
	SMAWindow        int     `json:"smaWindow"`
	EMASpan          int     `json:"emaSpan"`
	VolatilityWindow int     `json:"volatilityWindow"`
	AbruptThreshold  float64 `json:"abruptThreshold"`
}

func (s *Server) params(r *http.Request) analytics.Params {
	return analytics.Params{
		SMAWindow:        parsePositiveInt(r, "sma", s.defaults.SMAWindow),
		EMASpan:          parsePositiveInt(r, "ema", s.defaults.EMASpan),
		VolatilityWindow: parsePositiveInt(r, "vol", s.defaults.VolatilityWindow),
		AbruptThreshold:  parsePositiveFloat(r, "threshold", s.defaults.AbruptThreshold),
	}
}

// analyze runs the full analytics report, writing the error response itself.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (*analytics.Report, bool) {
	symbol := r.PathValue("symbol")
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rep, err := s.analytics.Analyze(r.Context(), symbol, from, to, s.params(r))
	if errors.Is(err, analytics.ErrUnknownInstrument) {
		writeError(w, http.StatusNotFound, "unknown instrument")
		return nil, false
	}
	if err != nil {
		s.logger.Error("analyze", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return nil, false
	}
	return rep, true
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.analyze(w, r)
	if !ok {
		return
	}
	f := rep.Frame
	sma, _ := f.Column(analytics.ColSMA)
	ema, _ := f.Column(analytics.ColEMA)
	vol, _ := f.Column(analytics.ColVolatility)
	risk, _ := f.Column(analytics.ColRisk)
	pct, _ := f.Column(analytics.ColPctChange)

	resp := analyticsResponse{
		Symbol: f.Symbol,
		Name:   f.Name,
		Params: analyticsParams{
			SMAWindow:        rep.Params.SMAWindow,
			EMASpan:          rep.Params.EMASpan,
			VolatilityWindow: rep.Params.VolatilityWindow,
			AbruptThreshold:  rep.Params.AbruptThreshold,
		},
		Rows:        make([]analyticsRow, f.Len()),
		AbruptMoves: make([]abruptJSON, len(rep.AbruptMoves)),
		BuySignals:  make([]string, len(rep.BuySignals)),
	}
	for i := 0; i < f.Len(); i++ {
		resp.Rows[i] = analyticsRow{
			Date:       models.FormatDay(f.Dates[i]),
			Close:      f.Close[i],
			SMA:        nullable(sma[i]),
			EMA:        nullable(ema[i]),
			Volatility: nullable(vol[i]),
			Risk:       nullable(risk[i]),
			PctChange:  nullable(pct[i]),
		}
	}
	for i, m := range rep.AbruptMoves {
		resp.AbruptMoves[i] = abruptJSON{Date: models.FormatDay(m.Date), Close: m.Close, PctChange: m.PctChange}
	}
	for i, d := range rep.BuySignals {
		resp.BuySignals[i] = models.FormatDay(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.analyze(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := analytics.WriteFrameCSV(&buf, rep.Frame); err != nil {
		s.logger.Error("export csv", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Frame.Symbol+".csv"))
	w.Write(buf.Bytes())
}

func (s *Server) handleAnalyticsChart(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.analyze(w, r)
	if !ok {
		return
	}
	if rep.Frame.Len() < 2 {
		writeError(w, http.StatusNotFound, "not enough data to chart")
		return
	}
	var buf bytes.Buffer
	if err := analytics.RenderPriceChart(&buf, rep.Frame); err != nil {
		s.logger.Error("render chart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) handleCorrelationChart(w http.ResponseWriter, r *http.Request) {
	symbols := parseSymbols(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols parameter is required")
		return
	}
	m, err := s.analytics.Correlation(r.Context(), symbols)
	if err != nil {
		s.logger.Error("correlation", zap.Strings("symbols", symbols), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute correlation")
		return
	}
	if m.Empty() {
		writeError(w, http.StatusNotFound, "no data for requested instruments")
		return
	}
	var buf bytes.Buffer
	if err := analytics.RenderCorrelationChart(&buf, m); err != nil {
		s.logger.Error("render correlation chart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

type matrixJSON struct {
	Names  []string     `json:"names"`
	Values [][]*float64 `json:"values"`
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	symbols := parseSymbols(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols parameter is required")
		return
	}
	m, err := s.analytics.Correlation(r.Context(), symbols)
	if err != nil {
		s.logger.Error("correlation", zap.Strings("symbols", symbols), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute correlation")
		return
	}

	out := matrixJSON{Names: []string{}, Values: [][]*float64{}}
	if !m.Empty() {
		out.Names = m.Names
		for _, row := range m.Values {
			vals := make([]*float64, len(row))
			for j, v := range row {
				vals[j] = nullable(v)
			}
			out.Values = append(out.Values, vals)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type compareJSON struct {
	Dates   []string             `json:"dates"`
	Columns map[string][]float64 `json:"columns"`
	Order   []string             `json:"order"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	symbols := parseSymbols(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols parameter is required")
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.analytics.Comparison(r.Context(), symbols, from, to)
	if err != nil {
		s.logger.Error("comparison", zap.Strings("symbols", symbols), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compare instruments")
		return
	}

	out := compareJSON{Dates: []string{}, Columns: map[string][]float64{}, Order: []string{}}
	for _, d := range t.Dates {
		out.Dates = append(out.Dates, models.FormatDay(d))
	}
	for _, col := range t.Columns {
		out.Order = append(out.Order, col.Name)
		out.Columns[col.Name] = col.Values
	}
	writeJSON(w, http.StatusOK, out)
}
