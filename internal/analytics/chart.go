package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderPriceChart draws close price with any SMA/EMA overlays as a PNG.
func RenderPriceChart(w io.Writer, f *Frame) error {
	if f.Len() < 2 {
		return fmt.Errorf("need at least 2 data points, got %d", f.Len())
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Close Price",
			Style:   chart.Style{StrokeColor: drawing.ColorFromHex("2563eb"), StrokeWidth: 2},
			XValues: f.Dates,
			YValues: f.Close,
		},
	}
	overlays := []struct {
		col   string
		color string
	}{
		{ColSMA, "f59e0b"},
		{ColEMA, "10b981"},
	}
	for _, o := range overlays {
		values, ok := f.Column(o.col)
		if !ok {
			continue
		}
		xs, ys := defined(f.Dates, values)
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    o.col,
			Style:   chart.Style{StrokeColor: drawing.ColorFromHex(o.color), StrokeWidth: 1.5},
			XValues: xs,
			YValues: ys,
		})
	}

	title := f.Name
	if title == "" {
		title = f.Symbol
	}
	graph := chart.Chart{
		Title:  title + " Stock Price",
		Width:  1200,
		Height: 500,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name: "Date",
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis:  chart.YAxis{Name: "Price"},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("chart render failed: %w", err)
	}
	return nil
}

func defined(dates []time.Time, values []float64) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for i, v := range values {
		if IsMissing(v) {
			continue
		}
		xs = append(xs, dates[i])
		ys = append(ys, v)
	}
	return xs, ys
}

const (
	heatCell   = 64
	heatMargin = 16
)

var (
	heatPositive = drawing.ColorFromHex("d62728")
	heatNegative = drawing.ColorFromHex("1f77b4")
	heatMissing  = drawing.ColorFromHex("d9d9d9")
)

// RenderCorrelationChart draws the matrix as an annotated heatmap PNG. Rows are
// labelled "i. Name"; columns carry the row index.
func RenderCorrelationChart(w io.Writer, m *Matrix) error {
	if m.Empty() {
		return fmt.Errorf("correlation matrix is empty")
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("load font: %w", err)
	}

	n := len(m.Names)
	labels := make([]string, n)
	for i, name := range m.Names {
		labels[i] = fmt.Sprintf("%d. %s", i+1, name)
	}

	// Measure labels on a scratch renderer to size the canvas.
	scratch, err := chart.PNG(1, 1)
	if err != nil {
		return err
	}
	scratch.SetFont(font)
	scratch.SetFontSize(10)
	labelWidth := 0
	for _, l := range labels {
		if lw := scratch.MeasureText(l).Width(); lw > labelWidth {
			labelWidth = lw
		}
	}

	left := heatMargin + labelWidth + 8
	top := heatMargin + 40
	width := left + n*heatCell + heatMargin
	height := top + n*heatCell + heatMargin

	r, err := chart.PNG(width, height)
	if err != nil {
		return err
	}
	r.SetFillColor(drawing.ColorWhite)
	fillRect(r, 0, 0, width, height)

	r.SetFont(font)
	r.SetFontColor(drawing.ColorBlack)
	r.SetFontSize(14)
	r.Text("Stock Price Correlation", heatMargin, heatMargin+6)

	r.SetFontSize(10)
	for i := range n {
		r.Text(labels[i], heatMargin, top+i*heatCell+heatCell/2+4)
		idx := fmt.Sprintf("%d", i+1)
		r.Text(idx, left+i*heatCell+(heatCell-r.MeasureText(idx).Width())/2, top-8)
	}

	for i := range n {
		for j := range n {
			v := m.At(i, j)
			x, y := left+j*heatCell, top+i*heatCell
			r.SetFillColor(heatColor(v))
			fillRect(r, x, y, heatCell-1, heatCell-1)

			text := "n/a"
			if !IsMissing(v) {
				text = fmt.Sprintf("%.2f", v)
			}
			tb := r.MeasureText(text)
			r.Text(text, x+(heatCell-tb.Width())/2, y+(heatCell+tb.Height())/2)
		}
	}

	if err := r.Save(w); err != nil {
		return fmt.Errorf("chart render failed: %w", err)
	}
	return nil
}

func fillRect(r chart.Renderer, x, y, w, h int) {
	r.MoveTo(x, y)
	r.LineTo(x+w, y)
	r.LineTo(x+w, y+h)
	r.LineTo(x, y+h)
	r.Close()
	r.Fill()
}

// heatColor blends white toward red for positive and blue for negative values.
func heatColor(v float64) drawing.Color {
	if IsMissing(v) {
		return heatMissing
	}
	target := heatPositive
	if v < 0 {
		target, v = heatNegative, -v
	}
	if v > 1 {
		v = 1
	}
	blend := func(c uint8) uint8 { return uint8(255 - (255-float64(c))*v) }
	return drawing.Color{R: blend(target.R), G: blend(target.G), B: blend(target.B), A: 255}
}
