package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
)

// MemStore is an in-memory PriceStore/SeriesReader for unit tests. Hooks
// inject failures; counters record session usage.
type MemStore struct {
	mu          sync.Mutex
	nextID      int64
	instruments map[string]models.Instrument
	points      map[int64]map[int64]models.PricePoint

	AcquireErr error
	LookupErr  error
	// UpsertHook runs before every upsert; a non-nil error rejects the row.
	UpsertHook func(p models.PricePoint) error

	Acquired int
	Released int
	Upserts  int
}

var (
	_ interfaces.PriceStore   = (*MemStore)(nil)
	_ interfaces.SeriesReader = (*MemStore)(nil)
)

func NewMemStore(instruments ...models.Instrument) *MemStore {
	m := &MemStore{
		instruments: make(map[string]models.Instrument),
		points:      make(map[int64]map[int64]models.PricePoint),
	}
	for _, inst := range instruments {
		m.AddInstrument(inst.Name, inst.Symbol)
	}
	return m
}

func (m *MemStore) AddInstrument(name, symbol string) models.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inst := models.Instrument{ID: m.nextID, Name: name, Symbol: symbol}
	m.instruments[symbol] = inst
	return inst
}

// Put stores bars directly, bypassing hooks and counters.
func (m *MemStore) Put(points ...models.PricePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.put(p)
	}
}

func (m *MemStore) put(p models.PricePoint) {
	p.TradeDate = models.TradingDay(p.TradeDate)
	byDate, ok := m.points[p.InstrumentID]
	if !ok {
		byDate = make(map[int64]models.PricePoint)
		m.points[p.InstrumentID] = byDate
	}
	byDate[p.TradeDate.Unix()] = p
}

// Points returns an instrument's bars ascending by date.
func (m *MemStore) Points(symbol string) []models.PricePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[symbol]
	if !ok {
		return nil
	}
	out := make([]models.PricePoint, 0, len(m.points[inst.ID]))
	for _, p := range m.points[inst.ID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out
}

func (m *MemStore) Instruments(ctx context.Context) ([]models.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	out := make([]models.Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemStore) InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	inst, ok := m.instruments[symbol]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

func (m *MemStore) Series(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	all := m.Points(symbol)
	out := all[:0:0]
	for _, p := range all {
		if !from.IsZero() && p.TradeDate.Before(from) {
			continue
		}
		if !to.IsZero() && p.TradeDate.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemStore) Latest(ctx context.Context, symbol string) (*models.LatestPrice, error) {
	all := m.Points(symbol)
	if len(all) == 0 {
		return nil, nil
	}
	last := all[len(all)-1]
	return &models.LatestPrice{Symbol: symbol, Close: last.Close, TradeDate: last.TradeDate}, nil
}

func (m *MemStore) Acquire(ctx context.Context) (interfaces.StoreSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	m.Acquired++
	return &memSession{store: m}, nil
}

type memSession struct {
	store    *MemStore
	released bool
}

func (s *memSession) InstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	return s.store.InstrumentBySymbol(ctx, symbol)
}

func (s *memSession) LatestTradeDate(ctx context.Context, instrumentID int64) (time.Time, bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var latest time.Time
	found := false
	for _, p := range s.store.points[instrumentID] {
		if !found || p.TradeDate.After(latest) {
			latest, found = p.TradeDate, true
		}
	}
	return latest, found, nil
}

func (s *memSession) UpsertPricePoint(ctx context.Context, p models.PricePoint) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.UpsertHook != nil {
		if err := s.store.UpsertHook(p); err != nil {
			return err
		}
	}
	s.store.Upserts++
	s.store.put(p)
	return nil
}

func (s *memSession) Release() {
	if s.released {
		return
	}
	s.released = true
	s.store.mu.Lock()
	s.store.Released++
	s.store.mu.Unlock()
}
