package store

import (
	"sync"

	"github.com/quantlab/papersim/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trades,
// keyed by instrument. Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]*domain.Trade // instrument → trades (chronological)
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]*domain.Trade),
	}
}

// Append adds a trade to the instrument's chronological list.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[t.Instrument] = append(s.trades[t.Instrument], t)
}

// GetByInstrument returns all trades for an instrument in chronological
// order. Returns an empty slice if no trades exist for the instrument.
func (s *TradeStore) GetByInstrument(instrument string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[instrument]
	if trades == nil {
		return []*domain.Trade{}
	}

	// Return a copy to avoid callers mutating the internal slice.
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// FillStore is a thread-safe in-memory store for fills, indexed by
// order ID. Fills are append-only.
type FillStore struct {
	mu    sync.RWMutex
	fills map[string][]*domain.Fill // order_id → fills (chronological)
}

// NewFillStore creates an empty FillStore.
func NewFillStore() *FillStore {
	return &FillStore{
		fills: make(map[string][]*domain.Fill),
	}
}

// Append adds a fill to its order's chronological list.
func (s *FillStore) Append(f *domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills[f.OrderID] = append(s.fills[f.OrderID], f)
}

// GetByOrder returns all fills for an order in chronological order.
func (s *FillStore) GetByOrder(orderID string) []*domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fills := s.fills[orderID]
	if fills == nil {
		return []*domain.Fill{}
	}

	result := make([]*domain.Fill, len(fills))
	copy(result, fills)
	return result
}
