package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/kjannette/stocksync/internal/models"
	"github.com/kjannette/stocksync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seededStore(t *testing.T) *testutil.MemStore {
	t.Helper()
	store := testutil.NewMemStore()
	rel := store.AddInstrument("Reliance Industries", "RELIANCE.NS")
	tcs := store.AddInstrument("Tata Consultancy Services", "TCS.NS")
	store.AddInstrument("Empty Co", "EMPTY.NS")

	for i, c := range []float64{100, 102, 101, 110, 108} {
		store.Put(models.PricePoint{InstrumentID: rel.ID, TradeDate: base.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 10})
	}
	// TCS misses day 0
	for i, c := range []float64{3000, 3010, 3100, 3090} {
		store.Put(models.PricePoint{InstrumentID: tcs.ID, TradeDate: base.AddDate(0, 0, i+1), Open: c, High: c, Low: c, Close: c, Volume: 10})
	}
	return store
}

func TestService_Comparison(t *testing.T) {
	svc := analytics.NewService(seededStore(t), zaptest.NewLogger(t))

	tbl, err := svc.Comparison(context.Background(), []string{"RELIANCE.NS", "TCS.NS", "EMPTY.NS", "NOPE.NS"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, tbl.Columns, 2, "empty and unknown instruments are excluded")
	assert.Equal(t, "Reliance Industries", tbl.Columns[0].Name)
	assert.Equal(t, "Tata Consultancy Services", tbl.Columns[1].Name)
	assert.Len(t, tbl.Dates, 4)

	tbl, err = svc.Comparison(context.Background(), []string{"RELIANCE.NS", "TCS.NS"}, base.AddDate(0, 0, 2), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 110}, tbl.Columns[0].Values)
}

func TestService_Correlation(t *testing.T) {
	svc := analytics.NewService(seededStore(t), zaptest.NewLogger(t))

	m, err := svc.Correlation(context.Background(), []string{"RELIANCE.NS", "TCS.NS"})
	require.NoError(t, err)
	require.Len(t, m.Names, 2)
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, m.At(0, 1), m.At(1, 0))

	m, err = svc.Correlation(context.Background(), []string{"EMPTY.NS", "NOPE.NS"})
	require.NoError(t, err)
	assert.True(t, m.Empty())
}

func TestService_Analyze(t *testing.T) {
	svc := analytics.NewService(seededStore(t), zaptest.NewLogger(t))

	rep, err := svc.Analyze(context.Background(), "RELIANCE.NS", time.Time{}, time.Time{}, analytics.Params{SMAWindow: 2, EMASpan: 2, VolatilityWindow: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Frame.Len())
	for _, col := range []string{analytics.ColSMA, analytics.ColEMA, analytics.ColVolatility, analytics.ColRisk, analytics.ColPctChange} {
		_, ok := rep.Frame.Column(col)
		assert.True(t, ok, col)
	}
	require.Len(t, rep.AbruptMoves, 1)
	assert.Equal(t, base.AddDate(0, 0, 3), rep.AbruptMoves[0].Date)
	assert.Equal(t, analytics.DefaultAbruptThreshold, rep.Params.AbruptThreshold)
}

func TestService_UnknownInstrument(t *testing.T) {
	svc := analytics.NewService(seededStore(t), nil)

	_, err := svc.Frame(context.Background(), "NOPE.NS", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, analytics.ErrUnknownInstrument)

	_, err = svc.CurrentPrice(context.Background(), "NOPE.NS")
	assert.ErrorIs(t, err, analytics.ErrUnknownInstrument)
}

func TestService_CurrentPrice(t *testing.T) {
	svc := analytics.NewService(seededStore(t), nil)

	lp, err := svc.CurrentPrice(context.Background(), "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, 3090.0, lp.Close)
	assert.Equal(t, base.AddDate(0, 0, 4), lp.TradeDate)

	lp, err = svc.CurrentPrice(context.Background(), "EMPTY.NS")
	require.NoError(t, err)
	assert.Nil(t, lp)
}

func TestService_StoreErrorPropagates(t *testing.T) {
	store := seededStore(t)
	store.LookupErr = errors.New("db down")
	svc := analytics.NewService(store, nil)

	_, err := svc.Correlation(context.Background(), []string{"TCS.NS"})
	assert.Error(t, err)
}
