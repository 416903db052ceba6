package api

import (
	"net/http"

	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

type priceJSON struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	list, err := s.instruments.Instruments(r.Context())
	if err != nil {
		s.logger.Error("list instruments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list instruments")
		return
	}
	if list == nil {
		list = []models.Instrument{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handlePrices returns stored bars, ascending. limit keeps the most recent N.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.knownSymbol(w, r, symbol) {
		return
	}

	points, err := s.series.Series(r.Context(), symbol, from, to)
	if err != nil {
		s.logger.Error("fetch prices", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}

	if limit := parseLimit(r, maxQueryLimit); len(points) > limit {
		points = points[len(points)-limit:]
	}

	out := make([]priceJSON, len(points))
	for i, p := range points {
		out[i] = priceJSON{
			Date:   models.FormatDay(p.TradeDate),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !s.knownSymbol(w, r, symbol) {
		return
	}

	price, err := s.series.Latest(r.Context(), symbol)
	if err != nil {
		s.logger.Error("fetch latest price", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch latest price")
		return
	}
	if price == nil {
		writeError(w, http.StatusNotFound, "no price data available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": price.Symbol,
		"close":  price.Close,
		"date":   models.FormatDay(price.TradeDate),
	})
}

// knownSymbol writes a 404 and returns false when symbol is not registered.
func (s *Server) knownSymbol(w http.ResponseWriter, r *http.Request, symbol string) bool {
	inst, err := s.series.InstrumentBySymbol(r.Context(), symbol)
	if err != nil {
		s.logger.Error("lookup instrument", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to look up instrument")
		return false
	}
	if inst == nil {
		writeError(w, http.StatusNotFound, "unknown instrument")
		return false
	}
	return true
}
