package models

import "time"

type Instrument struct {
	ID     int64  `json:"id" yaml:"-"`
	Name   string `json:"name" yaml:"name"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

// PricePoint is one OHLCV bar. TradeDate is always UTC midnight.
type PricePoint struct {
	InstrumentID int64     `json:"instrumentId"`
	TradeDate    time.Time `json:"tradeDate"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
}

type LatestPrice struct {
	Symbol    string    `json:"symbol"`
	Close     float64   `json:"close"`
	TradeDate time.Time `json:"tradeDate"`
}
