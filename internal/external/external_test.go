package external_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjannette/stocksync/internal/external"
	"github.com/kjannette/stocksync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const avDaily = `{
  "Meta Data": {"2. Symbol": "RELIANCE.BSE"},
  "Time Series (Daily)": {
    "2024-01-03": {"1. open": "101.0", "2. high": "103.5", "3. low": "100.5", "4. close": "102.0", "5. volume": "1200"},
    "2024-01-02": {"1. open": "100.0", "2. high": "102.0", "3. low": "99.0", "4. close": "101.0", "5. volume": "1000"},
    "not-a-date": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"}
  }
}`

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAlphaVantageFetchRaw(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"function":   r.URL.Query().Get("function"),
			"symbol":     r.URL.Query().Get("symbol"),
			"outputsize": r.URL.Query().Get("outputsize"),
			"apikey":     r.URL.Query().Get("apikey"),
		}
		w.Write([]byte(avDaily))
	}))
	defer srv.Close()

	c := external.NewAlphaVantageClient("k3y", external.ClientOptions{BaseURL: srv.URL, Logger: zaptest.NewLogger(t)})
	raw, err := c.FetchRaw(context.Background(), "RELIANCE.BSE")
	require.NoError(t, err)

	assert.Equal(t, "TIME_SERIES_DAILY", gotQuery["function"])
	assert.Equal(t, "RELIANCE.BSE", gotQuery["symbol"])
	assert.Equal(t, "full", gotQuery["outputsize"])
	assert.Equal(t, "k3y", gotQuery["apikey"])

	assert.Equal(t, models.AlphaVantage, raw.Provider)
	require.Len(t, raw.Rows, 2, "unparseable date is skipped")
	assert.Equal(t, day("2024-01-02"), raw.Rows[0].Date)
	assert.Equal(t, day("2024-01-03"), raw.Rows[1].Date)
	assert.Equal(t, "101.0", raw.Rows[0].Values["4. close"])
}

func TestAlphaVantageFetchRaw_NumericCells(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Time Series (Daily)": {
			"2024-01-02": {"1. open": 100.25, "2. high": 102, "3. low": 99.5, "4. close": 101.75, "5. volume": 1000}
		}}`))
	}))
	defer srv.Close()

	c := external.NewAlphaVantageClient("k", external.ClientOptions{BaseURL: srv.URL})
	raw, err := c.FetchRaw(context.Background(), "X")
	require.NoError(t, err)
	require.Len(t, raw.Rows, 1)
	assert.Equal(t, json.Number("101.75"), raw.Rows[0].Values["4. close"])
	assert.Equal(t, json.Number("1000"), raw.Rows[0].Values["5. volume"])
}

func TestAlphaVantageFetchRaw_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error message", 200, `{"Error Message": "Invalid API call"}`},
		{"throttle note", 200, `{"Note": "Thank you for using Alpha Vantage"}`},
		{"missing series", 200, `{"Meta Data": {}}`},
		{"bad status", 403, `{}`},
		{"garbage", 200, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := external.NewAlphaVantageClient("k", external.ClientOptions{BaseURL: srv.URL})
			_, err := c.FetchRaw(context.Background(), "X")
			assert.Error(t, err)
		})
	}
}

func TestAlphaVantageFetchRaw_NoKey(t *testing.T) {
	c := external.NewAlphaVantageClient("", external.ClientOptions{BaseURL: "http://127.0.0.1:0"})
	_, err := c.FetchRaw(context.Background(), "X")
	assert.ErrorContains(t, err, "API key")
}

func yahooBody(ts []int64, close, adj []any) string {
	body := map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":      map[string]any{"gmtoffset": 19800},
				"timestamp": ts,
				"indicators": map[string]any{
					"quote": []any{map[string]any{
						"open":   close,
						"high":   close,
						"low":    close,
						"close":  close,
						"volume": []any{500, nil, 700}[:len(ts)],
					}},
					"adjclose": []any{map[string]any{"adjclose": adj}},
				},
			}},
			"error": nil,
		},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func TestYahooFetchRaw(t *testing.T) {
	// 2024-01-02 03:45 UTC and 2024-01-03 03:45 UTC (09:15 IST)
	ts := []int64{1704167100, 1704253500}
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(yahooBody(ts, []any{100.0, 200.0}, []any{50.0, nil})))
	}))
	defer srv.Close()

	c := external.NewYahooClient(external.ClientOptions{BaseURL: srv.URL, Logger: zaptest.NewLogger(t)})
	raw, err := c.FetchRaw(context.Background(), "TCS.NS")
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/TCS.NS", gotPath)
	assert.NotEmpty(t, gotUA)
	require.Len(t, raw.Rows, 2)
	assert.Equal(t, day("2024-01-02"), raw.Rows[0].Date)

	// adjusted by adjclose/close = 0.5
	assert.InDelta(t, 50.0, raw.Rows[0].Values["Close"], 1e-9)
	assert.InDelta(t, 50.0, raw.Rows[0].Values["Open"], 1e-9)
	assert.InDelta(t, 500.0, raw.Rows[0].Values["Volume"], 1e-9)

	// no adjclose leaves the bar untouched and a null volume stays nil
	assert.InDelta(t, 200.0, raw.Rows[1].Values["Close"], 1e-9)
	assert.Nil(t, raw.Rows[1].Values["Volume"])
}

func TestYahooFetchRaw_ChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	c := external.NewYahooClient(external.ClientOptions{BaseURL: srv.URL})
	_, err := c.FetchRaw(context.Background(), "GONE.NS")
	assert.ErrorContains(t, err, "delisted")
}

type stubSource struct {
	provider models.Provider
	raw      *models.RawSeries
	err      error
	calls    int
}

func (s *stubSource) Provider() models.Provider { return s.provider }

func (s *stubSource) FetchRaw(ctx context.Context, symbol string) (*models.RawSeries, error) {
	s.calls++
	return s.raw, s.err
}

func TestAdapterFetch_DowngradesErrorsToNoData(t *testing.T) {
	src := &stubSource{provider: models.AlphaVantage, err: assert.AnError}
	a := external.NewAdapter(zaptest.NewLogger(t), src)

	_, err := a.Fetch(context.Background(), "X", models.AlphaVantage)
	assert.ErrorIs(t, err, external.ErrNoData)
	assert.Equal(t, 1, src.calls)

	_, err = a.Fetch(context.Background(), "X", models.Yahoo)
	assert.ErrorIs(t, err, external.ErrNoData, "unregistered provider")
}

func TestNormalize(t *testing.T) {
	raw := &models.RawSeries{
		Provider: models.Yahoo,
		Symbol:   "TCS.NS",
		Rows: []models.RawRow{
			{Date: day("2024-01-03"), Values: map[string]any{"Open": 1.0, "High": 2.0, "Low": 0.5, "Close": 1.5, "Volume": 10.0}},
			{Date: day("2024-01-02"), Values: map[string]any{"Open": 1.0, "High": 2.0, "Low": 0.5, "Close": 1.1, "Volume": 10.0}},
			{Date: day("2024-01-02"), Values: map[string]any{"Open": 1.0, "High": 2.0, "Low": 0.5, "Close": 1.2, "Volume": 10.0}},
			{Date: day("2024-01-04"), Values: map[string]any{"Close": 1.0}},
		},
	}
	frame, err := external.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, day("2024-01-02"), frame.Rows[0].Date)
	assert.Equal(t, 1.2, frame.Rows[0].Close, "later duplicate wins")
	assert.Equal(t, day("2024-01-03"), frame.Rows[1].Date)
}

func TestNormalize_NoData(t *testing.T) {
	_, err := external.Normalize(&models.RawSeries{Provider: models.AlphaVantage})
	assert.ErrorIs(t, err, external.ErrNoData)

	_, err = external.Normalize(&models.RawSeries{
		Provider: models.AlphaVantage,
		Rows:     []models.RawRow{{Date: day("2024-01-02"), Values: map[string]any{"Open": 1.0}}},
	})
	assert.ErrorIs(t, err, external.ErrNoData, "wrong column table")

	_, err = external.Normalize(&models.RawSeries{
		Provider: "stooq",
		Rows:     []models.RawRow{{Date: day("2024-01-02"), Values: map[string]any{}}},
	})
	assert.ErrorIs(t, err, external.ErrNoData)
}
