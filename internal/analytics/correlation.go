package analytics

import (
	"math"
	"time"
)

// NamedSeries is one instrument's close prices labelled by display name.
type NamedSeries struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// CloseSeries labels f's close column with the instrument's display name,
// falling back to the symbol.
func CloseSeries(f *Frame) NamedSeries {
	name := f.Name
	if name == "" {
		name = f.Symbol
	}
	return NamedSeries{Name: name, Dates: f.Dates, Values: f.Close}
}

// Table is several series joined on their common trading dates.
type Table struct {
	Dates   []time.Time `json:"dates"`
	Columns []Column    `json:"columns"`
}

func (t *Table) Empty() bool { return t == nil || len(t.Columns) == 0 }

// Align inner-joins the series on trading date: only dates present in every
// series survive, ascending. No input gives an empty table.
func Align(series ...NamedSeries) *Table {
	t := &Table{}
	if len(series) == 0 {
		return t
	}

	index := make([]map[int64]float64, len(series))
	for i, s := range series {
		index[i] = make(map[int64]float64, len(s.Dates))
		for j, d := range s.Dates {
			index[i][d.Unix()] = s.Values[j]
		}
	}

	// Walk the first series to keep ascending order.
	for _, d := range series[0].Dates {
		key := d.Unix()
		present := true
		for _, idx := range index[1:] {
			if _, ok := idx[key]; !ok {
				present = false
				break
			}
		}
		if present {
			t.Dates = append(t.Dates, d)
		}
	}

	for i, s := range series {
		col := Column{Name: s.Name, Values: make([]float64, len(t.Dates))}
		for j, d := range t.Dates {
			col.Values[j] = index[i][d.Unix()]
		}
		t.Columns = append(t.Columns, col)
	}
	return t
}

// Matrix is a square, symmetric correlation matrix.
type Matrix struct {
	Names  []string    `json:"names"`
	Values [][]float64 `json:"values"`
}

func (m *Matrix) Empty() bool { return m == nil || len(m.Names) == 0 }

// At returns the correlation between the i-th and j-th series.
func (m *Matrix) At(i, j int) float64 { return m.Values[i][j] }

// Correlate computes pairwise Pearson correlation over the table's columns.
// Pairs involving a constant column, or with fewer than two rows, are Missing.
func Correlate(t *Table) *Matrix {
	m := &Matrix{}
	if t.Empty() {
		return m
	}
	n := len(t.Columns)
	m.Names = make([]string, n)
	m.Values = make([][]float64, n)
	for i := range t.Columns {
		m.Names[i] = t.Columns[i].Name
		m.Values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := pearson(t.Columns[i].Values, t.Columns[j].Values)
			if i == j && !IsMissing(r) {
				r = 1
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

func pearson(x, y []float64) float64 {
	n := len(x)
	if n < 2 || len(y) != n {
		return Missing
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return Missing
	}
	r := sxy / math.Sqrt(sxx*syy)
	return math.Max(-1, math.Min(1, r))
}
