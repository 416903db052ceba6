package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kjannette/stocksync/internal/models"
)

func upsertPricePoint(ctx context.Context, q querier, p models.PricePoint) error {
	_, err := q.Exec(ctx,
		`INSERT INTO price_points (instrument_id, trade_date, open, high, low, close, volume)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (instrument_id, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = NOW()`,
		p.InstrumentID, models.TradingDay(p.TradeDate), p.Open, p.High, p.Low, p.Close, p.Volume,
	)
	return err
}

func latestTradeDate(ctx context.Context, q querier, instrumentID int64) (time.Time, bool, error) {
	var d *time.Time
	err := q.QueryRow(ctx,
		`SELECT MAX(trade_date) FROM price_points WHERE instrument_id = $1`,
		instrumentID,
	).Scan(&d)
	if err != nil {
		return time.Time{}, false, err
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return models.TradingDay(*d), true, nil
}

func series(ctx context.Context, q querier, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	sql := `SELECT p.instrument_id, p.trade_date, p.open, p.high, p.low, p.close, p.volume
		FROM price_points p
		JOIN instruments i ON i.id = p.instrument_id
		WHERE i.symbol = $1`
	args := []any{symbol}
	if !from.IsZero() {
		args = append(args, models.TradingDay(from))
		sql += fmt.Sprintf(" AND p.trade_date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, models.TradingDay(to))
		sql += fmt.Sprintf(" AND p.trade_date <= $%d", len(args))
	}
	sql += ` ORDER BY p.trade_date ASC`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

func latest(ctx context.Context, q querier, symbol string) (*models.LatestPrice, error) {
	lp := models.LatestPrice{Symbol: symbol}
	err := q.QueryRow(ctx,
		`SELECT p.close, p.trade_date
		 FROM price_points p
		 JOIN instruments i ON i.id = p.instrument_id
		 WHERE i.symbol = $1
		 ORDER BY p.trade_date DESC
		 LIMIT 1`,
		symbol,
	).Scan(&lp.Close, &lp.TradeDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	lp.TradeDate = models.TradingDay(lp.TradeDate)
	return &lp, nil
}

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.InstrumentID, &p.TradeDate, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, err
		}
		p.TradeDate = models.TradingDay(p.TradeDate)
		out = append(out, p)
	}
	return out, rows.Err()
}
