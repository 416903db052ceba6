package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kjannette/stocksync/internal/models"
	"github.com/shopspring/decimal"
)

var (
	errMissingValue = errors.New("missing value")
	errNotFinite    = errors.New("not a finite number")
	errNegative     = errors.New("negative value")
	errNotInteger   = errors.New("not an integer")
	errOutOfRange   = errors.New("value out of range")
)

// maxExponent bounds parsed decimals so conversion stays cheap; float64 tops
// out near 1e308.
const maxExponent = 400

var maxVolume = decimal.NewFromInt(math.MaxInt64)

// ToPricePoint coerces a candidate row into a PricePoint for instrumentID.
// Prices must be finite. A missing or NaN volume becomes 0; any other volume
// must be a non-negative integer.
func ToPricePoint(instrumentID int64, row models.CandidateRow) (models.PricePoint, error) {
	p := models.PricePoint{InstrumentID: instrumentID, TradeDate: models.TradingDay(row.Date)}

	fields := []struct {
		name string
		raw  any
		dst  *float64
	}{
		{"open", row.Open, &p.Open},
		{"high", row.High, &p.High},
		{"low", row.Low, &p.Low},
		{"close", row.Close, &p.Close},
	}
	for _, f := range fields {
		v, err := toFloat(f.raw)
		if err != nil {
			return models.PricePoint{}, &RowConversionError{Date: p.TradeDate, Field: f.name, Value: f.raw, Err: err}
		}
		*f.dst = v
	}

	vol, err := toVolume(row.Volume)
	if err != nil {
		return models.PricePoint{}, &RowConversionError{Date: p.TradeDate, Field: "volume", Value: row.Volume, Err: err}
	}
	p.Volume = vol
	return p, nil
}

func toFloat(raw any) (float64, error) {
	d, err := toDecimal(raw)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func toVolume(raw any) (int64, error) {
	if isNullish(raw) {
		return 0, nil
	}
	d, err := toDecimal(raw)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errNegative
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, errNotInteger
	}
	if d.GreaterThan(maxVolume) {
		return 0, errOutOfRange
	}
	return d.IntPart(), nil
}

// isNullish reports nil and NaN cells, unwrapping single-element slices.
func isNullish(raw any) bool {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(v)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "" || s == "nan" || s == "null"
	}
	return false
}

func unwrap(raw any) any {
	if s, ok := raw.([]any); ok && len(s) == 1 {
		return s[0]
	}
	return raw
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := unwrap(raw).(type) {
	case nil:
		return decimal.Zero, errMissingValue
	case decimal.Decimal:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, errNotFinite
		}
		return decimal.NewFromFloat(v), nil
	case float32:
		return toDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", raw)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errMissingValue
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotFinite
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, errOutOfRange
	}
	return d, nil
}
