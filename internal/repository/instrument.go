package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kjannette/stocksync/internal/models"
)

func listInstruments(ctx context.Context, q querier) ([]models.Instrument, error) {
	rows, err := q.Query(ctx,
		`SELECT id, name, symbol FROM instruments ORDER BY name ASC, symbol ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Instrument
	for rows.Next() {
		var in models.Instrument
		if err := rows.Scan(&in.ID, &in.Name, &in.Symbol); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func instrumentBySymbol(ctx context.Context, q querier, symbol string) (*models.Instrument, error) {
	var in models.Instrument
	err := q.QueryRow(ctx,
		`SELECT id, name, symbol FROM instruments WHERE symbol = $1`,
		symbol,
	).Scan(&in.ID, &in.Name, &in.Symbol)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

// seedInstruments registers instruments, skipping symbols that already exist.
// It returns how many were newly inserted.
func seedInstruments(ctx context.Context, q querier, instruments []models.Instrument) (int, error) {
	inserted := 0
	for _, in := range instruments {
		if in.Symbol == "" || in.Name == "" {
			return inserted, fmt.Errorf("instrument %q/%q: name and symbol are required", in.Name, in.Symbol)
		}
		tag, err := q.Exec(ctx,
			`INSERT INTO instruments (name, symbol) VALUES ($1, $2)
			 ON CONFLICT (symbol) DO NOTHING`,
			in.Name, in.Symbol,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", in.Symbol, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
