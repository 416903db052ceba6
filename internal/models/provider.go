package models

import "time"

// Provider tags which upstream produced a series. Each provider carries its
// own fixed column table.
type Provider string

const (
	AlphaVantage Provider = "alphavantage"
	Yahoo        Provider = "yahoo"
)

// ColumnSet names the raw columns holding each canonical OHLCV field.
type ColumnSet struct {
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
}

func (c ColumnSet) All() []string {
	return []string{c.Open, c.High, c.Low, c.Close, c.Volume}
}

var providerColumns = map[Provider]ColumnSet{
	AlphaVantage: {Open: "1. open", High: "2. high", Low: "3. low", Close: "4. close", Volume: "5. volume"},
	Yahoo:        {Open: "Open", High: "High", Low: "Low", Close: "Close", Volume: "Volume"},
}

// Columns returns the provider's column table. ok is false for unknown providers.
func (p Provider) Columns() (ColumnSet, bool) {
	c, ok := providerColumns[p]
	return c, ok
}

func (p Provider) String() string { return string(p) }

// RawRow is one provider row before normalization. Cell values are left as
// decoded (json.Number, string, float64, nil or a single-element slice).
type RawRow struct {
	Date   time.Time
	Values map[string]any
}

type RawSeries struct {
	Provider Provider
	Symbol   string
	Rows     []RawRow
}

// CandidateRow is a row mapped onto the canonical field set, values still
// uncoerced.
type CandidateRow struct {
	Date   time.Time
	Open   any
	High   any
	Low    any
	Close  any
	Volume any
}

// CandidateFrame is a normalized provider response, ascending by date.
type CandidateFrame struct {
	Provider Provider
	Symbol   string
	Rows     []CandidateRow
}

func (f *CandidateFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}
