package models

import "time"

const DayLayout = "2006-01-02"

// TradingDay normalizes a timestamp to its calendar date at UTC midnight,
// the form every PricePoint.TradeDate is stored and compared in.
func TradingDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYY-MM-DD into a trading day.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DayLayout, s)
}

func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}
