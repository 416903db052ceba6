// Package analytics derives metrics from stored daily series. Every
// transform is pure: inputs are never mutated, derived columns are added to a
// copy, and an empty frame produces an empty result.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/kjannette/stocksync/internal/models"
)

// Derived column names.
const (
	ColSMA        = "SMA"
	ColEMA        = "EMA"
	ColPctChange  = "pct_change"
	ColVolatility = "volatility"
	ColRisk       = "risk"
)

// Missing marks a value that cannot be computed (e.g. SMA warm-up rows).
var Missing = math.NaN()

func IsMissing(v float64) bool { return math.IsNaN(v) }

// Column is a named series aligned by index with its owner's dates.
type Column struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Frame is one instrument's series, strictly ascending by trading date, plus
// any derived columns.
type Frame struct {
	Symbol string
	Name   string
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []int64

	derived []Column
}

// FromPoints builds a frame from stored bars. Points are sorted and a
// repeated date keeps the last occurrence.
func FromPoints(symbol, name string, points []models.PricePoint) *Frame {
	sorted := make([]models.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TradeDate.Before(sorted[j].TradeDate) })

	f := &Frame{Symbol: symbol, Name: name}
	for _, p := range sorted {
		d := models.TradingDay(p.TradeDate)
		if n := len(f.Dates); n > 0 && f.Dates[n-1].Equal(d) {
			f.Open[n-1], f.High[n-1], f.Low[n-1], f.Close[n-1], f.Volume[n-1] = p.Open, p.High, p.Low, p.Close, p.Volume
			continue
		}
		f.Dates = append(f.Dates, d)
		f.Open = append(f.Open, p.Open)
		f.High = append(f.High, p.High)
		f.Low = append(f.Low, p.Low)
		f.Close = append(f.Close, p.Close)
		f.Volume = append(f.Volume, p.Volume)
	}
	return f
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Dates)
}

func (f *Frame) Empty() bool { return f.Len() == 0 }

// Clone deep-copies the frame including derived columns.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return &Frame{}
	}
	c := &Frame{
		Symbol: f.Symbol,
		Name:   f.Name,
		Dates:  append([]time.Time(nil), f.Dates...),
		Open:   append([]float64(nil), f.Open...),
		High:   append([]float64(nil), f.High...),
		Low:    append([]float64(nil), f.Low...),
		Close:  append([]float64(nil), f.Close...),
		Volume: append([]int64(nil), f.Volume...),
	}
	for _, col := range f.derived {
		c.derived = append(c.derived, Column{Name: col.Name, Values: append([]float64(nil), col.Values...)})
	}
	return c
}

// Column returns a derived column by name.
func (f *Frame) Column(name string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	for _, col := range f.derived {
		if col.Name == name {
			return col.Values, true
		}
	}
	return nil, false
}

// Derived lists derived columns in the order they were added.
func (f *Frame) Derived() []Column {
	if f == nil {
		return nil
	}
	return f.derived
}

// withColumn returns a copy of f carrying values under name, replacing any
// existing column of that name in place.
func (f *Frame) withColumn(name string, values []float64) *Frame {
	c := f.Clone()
	for i := range c.derived {
		if c.derived[i].Name == name {
			c.derived[i].Values = values
			return c
		}
	}
	c.derived = append(c.derived, Column{Name: name, Values: values})
	return c
}
