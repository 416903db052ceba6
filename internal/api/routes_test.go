package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjannette/stocksync/internal/models"
	"github.com/kjannette/stocksync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeRunner struct {
	running atomic.Bool
	runs    atomic.Int32
	last    *models.SyncReport
}

func (f *fakeRunner) Run(ctx context.Context) (*models.SyncReport, error) {
	f.runs.Add(1)
	return &models.SyncReport{}, nil
}
func (f *fakeRunner) Running() bool            { return f.running.Load() }
func (f *fakeRunner) Last() *models.SyncReport { return f.last }

func newTestServer(t *testing.T, runner SyncRunner) (http.Handler, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewMemStore()
	rel := store.AddInstrument("Reliance Industries", "RELIANCE.NS")
	tcs := store.AddInstrument("Tata Consultancy Services", "TCS.NS")
	store.AddInstrument("Empty Co", "EMPTY.NS")
	for i, c := range []float64{100, 102, 101, 110, 108} {
		store.Put(models.PricePoint{InstrumentID: rel.ID, TradeDate: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 5})
		store.Put(models.PricePoint{InstrumentID: tcs.ID, TradeDate: day0.AddDate(0, 0, i), Open: c * 30, High: c * 30, Low: c * 30, Close: c*30 + float64(i), Volume: 7})
	}

	s := NewServer(Deps{
		DB:          fakePinger{},
		Instruments: store,
		Series:      store,
		Sync:        runner,
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok_metric 1\n")) }),
		Logger:      zaptest.NewLogger(t),
	}, Options{APIKey: "k", CORSOrigin: "*"})
	return s.Handler(), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer k")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "connected", body.Services.Database)
	assert.Equal(t, "idle", body.Services.Sync)
}

func TestHealth_DatabaseDown(t *testing.T) {
	s := NewServer(Deps{DB: fakePinger{err: errors.New("down")}}, Options{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body.Services.Database)
}

func TestMetricsRoute(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok_metric")
}

func TestInstruments(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rr := get(t, h, "/v1/instruments")
	require.Equal(t, http.StatusOK, rr.Code)

	var list []models.Instrument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "Empty Co", list[0].Name)
}

func TestPrices(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/prices/RELIANCE.NS?from=2024-01-02&to=2024-01-04")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []priceJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "2024-01-02", out[0].Date)
	assert.Equal(t, 110.0, out[2].Close)

	rr = get(t, h, "/v1/prices/RELIANCE.NS?limit=2")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "2024-01-05", out[1].Date)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/prices/NOPE.NS").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/prices/RELIANCE.NS?from=yesterday").Code)
}

func TestLatestPrice(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/prices/RELIANCE.NS/latest")
	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 108.0, out["close"])
	assert.Equal(t, "2024-01-05", out["date"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/prices/EMPTY.NS/latest").Code)
}

func TestAnalytics(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/analytics/RELIANCE.NS?sma=3&ema=3&vol=3&threshold=0.05")
	require.Equal(t, http.StatusOK, rr.Code)

	var out analyticsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "Reliance Industries", out.Name)
	assert.Equal(t, 3, out.Params.SMAWindow)
	require.Len(t, out.Rows, 5)
	assert.Nil(t, out.Rows[0].SMA, "warm-up rows are null")
	assert.Nil(t, out.Rows[0].PctChange)
	require.NotNil(t, out.Rows[2].SMA)
	assert.InDelta(t, 101.0, *out.Rows[2].SMA, 1e-9)
	require.Len(t, out.AbruptMoves, 1)
	assert.Equal(t, "2024-01-04", out.AbruptMoves[0].Date)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/analytics/NOPE.NS").Code)
}

func TestAnalyticsExportAndChart(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/analytics/TCS.NS/export?sma=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "trade_date,open,high,low,close,volume,SMA,EMA,volatility,risk,pct_change\n"))

	rr = get(t, h, "/v1/analytics/TCS.NS/chart")
	require.Equal(t, http.StatusOK, rr.Code)
	_, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	assert.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/analytics/EMPTY.NS/chart").Code)
}

func TestCorrelation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/correlation?symbols=RELIANCE.NS,TCS.NS,EMPTY.NS")
	require.Equal(t, http.StatusOK, rr.Code)
	var out matrixJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, []string{"Reliance Industries", "Tata Consultancy Services"}, out.Names)
	require.NotNil(t, out.Values[0][0])
	assert.Equal(t, 1.0, *out.Values[0][0])
	assert.Equal(t, *out.Values[0][1], *out.Values[1][0])

	rr = get(t, h, "/v1/correlation?symbols=EMPTY.NS")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Empty(t, out.Names)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/correlation").Code)
}

func TestCorrelationChart(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/correlation/chart?symbols=RELIANCE.NS,TCS.NS")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/correlation/chart?symbols=EMPTY.NS").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/correlation/chart").Code)
}

func TestCompare(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rr := get(t, h, "/v1/compare?symbols=RELIANCE.NS,TCS.NS&from=2024-01-03")
	require.Equal(t, http.StatusOK, rr.Code)
	var out compareJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, out.Dates)
	assert.Equal(t, []string{"Reliance Industries", "Tata Consultancy Services"}, out.Order)
	assert.Equal(t, []float64{101, 110, 108}, out.Columns["Reliance Industries"])
}

func TestSyncTrigger(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := newTestServer(t, runner)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer k")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Eventually(t, func() bool { return runner.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	runner.running.Store(true)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSyncTrigger_UsesTriggerFunc(t *testing.T) {
	runner := &fakeRunner{}
	var triggered atomic.Int32
	s := NewServer(Deps{
		Sync: runner,
		Trigger: func(ctx context.Context) (*models.SyncReport, error) {
			triggered.Add(1)
			return &models.SyncReport{}, nil
		},
	}, Options{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Eventually(t, func() bool { return triggered.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, runner.runs.Load())
}

func TestShutdownCancelsTriggeredSync(t *testing.T) {
	started := make(chan struct{})
	var runErr atomic.Value
	s := NewServer(Deps{
		Sync: &fakeRunner{},
		Trigger: func(ctx context.Context) (*models.SyncReport, error) {
			close(started)
			<-ctx.Done()
			runErr.Store(ctx.Err())
			return nil, ctx.Err()
		},
		Logger: zaptest.NewLogger(t),
	}, Options{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.ErrorIs(t, runErr.Load().(error), context.Canceled)
}

func TestSyncLast(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := newTestServer(t, runner)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/sync/last").Code)

	runner.last = &models.SyncReport{RunID: "abc", NewRows: 9}
	rr := get(t, h, "/v1/sync/last")
	require.Equal(t, http.StatusOK, rr.Code)
	var out models.SyncReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "abc", out.RunID)
	assert.Equal(t, 9, out.NewRows)
}
