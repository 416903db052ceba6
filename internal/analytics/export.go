package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/kjannette/stocksync/internal/models"
)

// WriteFrameCSV writes a header row and one row per trading date, including
// every derived column. Missing values are written as empty cells.
func WriteFrameCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	header := []string{"trade_date", "open", "high", "low", "close", "volume"}
	for _, col := range f.Derived() {
		header = append(header, col.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := 0; i < f.Len(); i++ {
		row := []string{
			models.FormatDay(f.Dates[i]),
			formatFloat(f.Open[i]),
			formatFloat(f.High[i]),
			formatFloat(f.Low[i]),
			formatFloat(f.Close[i]),
			strconv.FormatInt(f.Volume[i], 10),
		}
		for _, col := range f.Derived() {
			row = append(row, formatFloat(col.Values[i]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableCSV writes an aligned comparison table keyed by trading date.
func WriteTableCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if t.Empty() {
		cw.Flush()
		return cw.Error()
	}
	header := []string{"trade_date"}
	for _, col := range t.Columns {
		header = append(header, col.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, d := range t.Dates {
		row := []string{models.FormatDay(d)}
		for _, col := range t.Columns {
			row = append(row, formatFloat(col.Values[i]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrixCSV writes the correlation matrix with names on both axes.
func WriteMatrixCSV(w io.Writer, m *Matrix) error {
	cw := csv.NewWriter(w)
	if m.Empty() {
		cw.Flush()
		return cw.Error()
	}
	if err := cw.Write(append([]string{""}, m.Names...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, name := range m.Names {
		row := []string{name}
		for _, v := range m.Values[i] {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
