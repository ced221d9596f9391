package engine

import "github.com/quantlab/papersim/internal/domain"

// MarketData serves point-in-time snapshots from the book manager. It
// implements the market data port consumed by the risk gate and the
// algorithmic scheduler.
type MarketData struct {
	books *BookManager
}

// NewMarketData creates a snapshot provider over the given books.
func NewMarketData(books *BookManager) *MarketData {
	return &MarketData{books: books}
}

// GetSnapshot returns the current market snapshot for an instrument.
// Instruments that have never traded return a zero-valued snapshot.
func (md *MarketData) GetSnapshot(instrument string) domain.MarketSnapshot {
	return md.books.GetOrCreate(instrument).Snapshot()
}
