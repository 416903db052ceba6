package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kjannette/stocksync/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveInstrument(t *testing.T) {
	c := New()
	c.ObserveInstrument(models.InstrumentResult{Symbol: "TCS.NS", Status: models.StatusUpdated, NewRows: 12, Duration: time.Second})
	c.ObserveInstrument(models.InstrumentResult{Symbol: "INFY.NS", Status: models.StatusNoData})
	c.ObserveFallback("INFY.NS", models.AlphaVantage, models.Yahoo)
	c.ObserveRowFailure("TCS.NS")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.InstrumentsSynced.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.InstrumentsSynced.WithLabelValues("no_data")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.RowsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fallbacks.WithLabelValues("alphavantage", "yahoo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RowFailures.WithLabelValues("TCS.NS")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveRun(&models.SyncReport{StartedAt: time.Unix(1000, 0), Duration: 5 * time.Second, NewRows: 3, Aborted: true})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "stocksync_last_run_new_rows 3")
	assert.Contains(t, body, "stocksync_runs_aborted_total 1")
	assert.Contains(t, body, "stocksync_last_run_timestamp_seconds 1005")
}

func TestCollector_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	c.RowsWritten.Add(4)
	require.NoError(t, c.Push(context.Background(), srv.URL, "stocksync_sync"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/stocksync_sync"), gotPath)
	assert.NotEmpty(t, gotBody)
}
