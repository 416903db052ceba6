package analytics_test

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameCSV(t *testing.T) {
	f := analytics.SMA(frameOf(10, 11, 12), 2)
	var buf bytes.Buffer
	require.NoError(t, analytics.WriteFrameCSV(&buf, f))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "trade_date,open,high,low,close,volume,SMA", lines[0])
	assert.Equal(t, "2024-01-01,10,10,10,10,100,", lines[1], "missing SMA is an empty cell")
	assert.Equal(t, "2024-01-02,11,11,11,11,100,10.5", lines[2])
}

func TestWriteTableAndMatrixCSV(t *testing.T) {
	days := []int{0, 1, 2}
	tbl := analytics.Align(series("Alpha", days, 1, 2, 3), series("Beta", days, 3, 2, 1))

	var buf bytes.Buffer
	require.NoError(t, analytics.WriteTableCSV(&buf, tbl))
	assert.True(t, strings.HasPrefix(buf.String(), "trade_date,Alpha,Beta\n2024-01-01,1,3\n"))

	buf.Reset()
	require.NoError(t, analytics.WriteMatrixCSV(&buf, analytics.Correlate(tbl)))
	assert.Equal(t, ",Alpha,Beta\nAlpha,1,-1\nBeta,-1,1\n", buf.String())

	buf.Reset()
	require.NoError(t, analytics.WriteMatrixCSV(&buf, analytics.Correlate(analytics.Align())))
	assert.Empty(t, buf.String())
}

func TestRenderPriceChart(t *testing.T) {
	f := analytics.EMA(analytics.SMA(frameOf(10, 11, 12, 13, 12, 14), 3), 3)
	var buf bytes.Buffer
	require.NoError(t, analytics.RenderPriceChart(&buf, f))

	_, err := png.Decode(&buf)
	assert.NoError(t, err)

	assert.Error(t, analytics.RenderPriceChart(&buf, frameOf(10)))
}

func TestRenderCorrelationChart(t *testing.T) {
	m := &analytics.Matrix{
		Names: []string{"Reliance Industries", "Flat Co"},
		Values: [][]float64{
			{1, analytics.Missing},
			{analytics.Missing, analytics.Missing},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, analytics.RenderCorrelationChart(&buf, m))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 2*64)

	assert.Error(t, analytics.RenderCorrelationChart(&buf, &analytics.Matrix{}))
}
