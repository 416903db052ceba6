package analytics

import (
	"math"
	"time"
)

const (
	DefaultWindow          = 20
	DefaultAbruptThreshold = 0.05
)

// SMA adds the trailing mean of close over window rows. The first window-1
// rows are Missing.
func SMA(f *Frame, window int) *Frame {
	if f.Empty() {
		return f.Clone()
	}
	return f.withColumn(ColSMA, rollingMean(f.Close, window))
}

// EMA adds the exponential moving average of close with alpha = 2/(span+1).
// The first close seeds the recursion, so every row has a value.
func EMA(f *Frame, span int) *Frame {
	if f.Empty() {
		return f.Clone()
	}
	if span < 1 {
		span = 1
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(f.Close))
	out[0] = f.Close[0]
	for i := 1; i < len(f.Close); i++ {
		out[i] = alpha*f.Close[i] + (1-alpha)*out[i-1]
	}
	return f.withColumn(ColEMA, out)
}

// PctChange adds close-over-previous-close change. The first row, and any
// row whose predecessor closed at zero, is Missing.
func PctChange(f *Frame) *Frame {
	if f.Empty() {
		return f.Clone()
	}
	out := make([]float64, len(f.Close))
	out[0] = Missing
	for i := 1; i < len(f.Close); i++ {
		prev := f.Close[i-1]
		if prev == 0 {
			out[i] = Missing
			continue
		}
		out[i] = f.Close[i]/prev - 1
	}
	return f.withColumn(ColPctChange, out)
}

// AbruptMove is a row whose close moved more than the threshold.
type AbruptMove struct {
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	PctChange float64   `json:"pctChange"`
}

// AbruptChanges adds pct_change and returns the rows where its absolute
// value exceeds threshold. The first row is never flagged.
func AbruptChanges(f *Frame, threshold float64) (*Frame, []AbruptMove) {
	out := PctChange(f)
	pct, _ := out.Column(ColPctChange)
	var moves []AbruptMove
	for i, v := range pct {
		if IsMissing(v) || math.Abs(v) <= threshold {
			continue
		}
		moves = append(moves, AbruptMove{Date: out.Dates[i], Close: out.Close[i], PctChange: v})
	}
	return out, moves
}

// VolatilityRisk adds the rolling sample standard deviation of close and
// risk = volatility / close. Both are Missing for the first window-1 rows.
func VolatilityRisk(f *Frame, window int) *Frame {
	if f.Empty() {
		return f.Clone()
	}
	vol := rollingStd(f.Close, window)
	risk := make([]float64, len(vol))
	for i, v := range vol {
		if IsMissing(v) || f.Close[i] == 0 {
			risk[i] = Missing
			continue
		}
		risk[i] = v / f.Close[i]
	}
	return f.withColumn(ColVolatility, vol).withColumn(ColRisk, risk)
}

// BestTimeToInvest returns the dates whose close is above the SMA. An
// existing SMA column is reused; otherwise one is computed over window.
func BestTimeToInvest(f *Frame, window int) []time.Time {
	if f.Empty() {
		return nil
	}
	sma, ok := f.Column(ColSMA)
	if !ok {
		sma, _ = SMA(f, window).Column(ColSMA)
	}
	var dates []time.Time
	for i, c := range f.Close {
		if !IsMissing(sma[i]) && c > sma[i] {
			dates = append(dates, f.Dates[i])
		}
	}
	return dates
}

func rollingMean(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i < window-1 {
			out[i] = Missing
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// rollingStd uses the n-1 denominator; a window of one has no defined value.
func rollingStd(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if window < 2 || i < window-1 {
			out[i] = Missing
			continue
		}
		seg := xs[i-window+1 : i+1]
		var mean float64
		for _, x := range seg {
			mean += x
		}
		mean /= float64(window)
		var ss float64
		for _, x := range seg {
			ss += (x - mean) * (x - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}
