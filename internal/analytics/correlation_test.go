package analytics_test

import (
	"testing"
	"time"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(name string, days []int, values ...float64) analytics.NamedSeries {
	s := analytics.NamedSeries{Name: name, Values: values}
	for _, d := range days {
		s.Dates = append(s.Dates, base.AddDate(0, 0, d))
	}
	return s
}

func TestAlign_Intersection(t *testing.T) {
	a := series("A", []int{0, 1, 2, 3}, 1, 2, 3, 4)
	b := series("B", []int{1, 2, 4}, 20, 30, 50)

	tbl := analytics.Align(a, b)
	assert.Equal(t, []time.Time{base.AddDate(0, 0, 1), base.AddDate(0, 0, 2)}, tbl.Dates)
	require.Len(t, tbl.Columns, 2)
	assert.Equal(t, "A", tbl.Columns[0].Name)
	assert.Equal(t, []float64{2, 3}, tbl.Columns[0].Values)
	assert.Equal(t, []float64{20, 30}, tbl.Columns[1].Values)
}

func TestCorrelate_DiagonalAndSymmetry(t *testing.T) {
	days := []int{0, 1, 2, 3, 4}
	tbl := analytics.Align(
		series("A", days, 1, 2, 3, 4, 5),
		series("B", days, 5, 3, 4, 1, 2),
		series("C", days, 2, 4, 6, 8, 11),
	)
	m := analytics.Correlate(tbl)
	require.Len(t, m.Names, 3)

	for i := range m.Names {
		assert.Equal(t, 1.0, m.At(i, i))
		for j := range m.Names {
			assert.Equal(t, m.At(i, j), m.At(j, i))
			assert.LessOrEqual(t, m.At(i, j), 1.0)
			assert.GreaterOrEqual(t, m.At(i, j), -1.0)
		}
	}
	assert.Greater(t, m.At(0, 2), 0.99)
	assert.Less(t, m.At(0, 1), 0.0)
}

func TestCorrelate_ConstantSeriesIsMissing(t *testing.T) {
	days := []int{0, 1, 2}
	m := analytics.Correlate(analytics.Align(series("A", days, 1, 2, 3), series("Flat", days, 5, 5, 5)))
	assert.True(t, analytics.IsMissing(m.At(0, 1)))
	assert.True(t, analytics.IsMissing(m.At(1, 1)))
	assert.Equal(t, 1.0, m.At(0, 0))
}

func TestCorrelate_SingleSeries(t *testing.T) {
	m := analytics.Correlate(analytics.Align(series("A", []int{0, 1}, 1, 2)))
	require.Len(t, m.Names, 1)
	assert.Equal(t, 1.0, m.At(0, 0))
}
