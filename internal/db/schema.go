package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
		id     BIGSERIAL PRIMARY KEY,
		name   TEXT NOT NULL,
		symbol TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS price_points (
		instrument_id BIGINT NOT NULL REFERENCES instruments(id),
		trade_date    DATE NOT NULL,
		open          DOUBLE PRECISION NOT NULL,
		high          DOUBLE PRECISION NOT NULL,
		low           DOUBLE PRECISION NOT NULL,
		close         DOUBLE PRECISION NOT NULL,
		volume        BIGINT NOT NULL CHECK (volume >= 0),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (instrument_id, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_points_instrument_date
		ON price_points (instrument_id, trade_date DESC)`,
}

// EnsureSchema creates the instrument registry and price tables if missing.
func EnsureSchema(ctx context.Context, p *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
