package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres persistence gateway.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ interfaces.PriceStore   = (*Store)(nil)
	_ interfaces.SeriesReader = (*Store)(nil)
	_ interfaces.StoreSession = (*Session)(nil)
)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return listInstruments(ctx, s.pool)
}

func (s *Store) InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	return instrumentBySymbol(ctx, s.pool, symbol)
}

func (s *Store) SeedInstruments(ctx context.Context, instruments []models.Instrument) (int, error) {
	return seedInstruments(ctx, s.pool, instruments)
}

func (s *Store) Series(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	return series(ctx, s.pool, symbol, from, to)
}

func (s *Store) Latest(ctx context.Context, symbol string) (*models.LatestPrice, error) {
	return latest(ctx, s.pool, symbol)
}

// Acquire checks out a dedicated pool connection for one instrument's sync.
func (s *Store) Acquire(ctx context.Context) (interfaces.StoreSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Session runs every statement on one connection. Statements autocommit, so
// a failed upsert never leaves an open transaction behind.
type Session struct {
	conn *pgxpool.Conn
}

func (s *Session) InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	return instrumentBySymbol(ctx, s.conn, symbol)
}

func (s *Session) LatestTradeDate(ctx context.Context, instrumentID int64) (time.Time, bool, error) {
	return latestTradeDate(ctx, s.conn, instrumentID)
}

func (s *Session) UpsertPricePoint(ctx context.Context, p models.PricePoint) error {
	return upsertPricePoint(ctx, s.conn, p)
}

// Release returns the connection to the pool. Safe to call more than once.
func (s *Session) Release() {
	if s.conn == nil {
		return
	}
	s.conn.Release()
	s.conn = nil
}
