package engine

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/quantlab/papersim/internal/domain"
)

// BookEntry represents a single user order resting on the book.
type BookEntry struct {
	Price     int64
	CreatedAt time.Time
	OrderID   string
	Order     *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess defines ordering for the bid side: price descending, then
// created_at ascending, then order_id ascending. This means Min()
// returns the best bid (highest price, earliest time).
func bidLess(a, b BookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// askLess defines ordering for the ask side: price ascending, then
// created_at ascending, then order_id ascending. Min() returns the
// best ask (lowest price, earliest time).
func askLess(a, b BookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// Book maintains the market state for a single instrument: the synthetic
// market-maker quote, user orders resting on bid and ask sides (B-trees
// with a secondary index for O(log n) removal by order ID), and daily
// trading statistics.
type Book struct {
	instrument string
	mu         sync.RWMutex
	bids       *btree.BTreeG[BookEntry]
	asks       *btree.BTreeG[BookEntry]
	index      map[string]BookEntry // order_id → entry

	// Stop orders parked until the last price crosses their trigger,
	// in arrival order.
	stops []*domain.Order

	// Synthetic market-maker quote. Zero price means the side is absent.
	quoteBid     int64
	quoteBidSize int64
	quoteAsk     int64
	quoteAskSize int64

	// Daily statistics, updated on every trade.
	lastPrice   int64
	dayHigh     int64
	dayLow      int64
	dayVolume   int64
	dayTurnover int64 // cents
	tradeCount  int64
}

// NewBook creates a book for the given instrument.
func NewBook(instrument string) *Book {
	const degree = 32
	return &Book{
		instrument: instrument,
		bids:       btree.NewG[BookEntry](degree, bidLess),
		asks:       btree.NewG[BookEntry](degree, askLess),
		index:      make(map[string]BookEntry),
	}
}

// InsertBid adds an entry to the bid side of the book.
func (b *Book) InsertBid(entry BookEntry) {
	b.bids.ReplaceOrInsert(entry)
	b.index[entry.OrderID] = entry
}

// InsertAsk adds an entry to the ask side of the book.
func (b *Book) InsertAsk(entry BookEntry) {
	b.asks.ReplaceOrInsert(entry)
	b.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by order ID using the
// secondary index. It tries both sides since the caller may not
// know which side the order is on. Parked stop orders are removed
// from the trigger list.
func (b *Book) Remove(orderID string) {
	for i, o := range b.stops {
		if o.OrderID == orderID {
			b.stops = append(b.stops[:i], b.stops[i+1:]...)
			break
		}
	}

	entry, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)
	// Delete is a no-op on the side the entry isn't on.
	b.bids.Delete(entry)
	b.asks.Delete(entry)
}

// addStop parks a stop order until its trigger price is crossed.
// Caller holds the book write lock.
func (b *Book) addStop(order *domain.Order) {
	b.stops = append(b.stops, order)
}

// popTriggeredStop removes and returns the first parked stop order
// whose trigger the last price has crossed. Caller holds the book
// write lock.
func (b *Book) popTriggeredStop() (*domain.Order, bool) {
	for i, o := range b.stops {
		if stopTriggered(o, b.lastPrice) {
			b.stops = append(b.stops[:i], b.stops[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

// stopTriggered reports whether the last price has crossed a stop
// order's trigger: at or above for buy stops, at or below for sell
// stops. A zero last price never triggers.
func stopTriggered(o *domain.Order, lastPrice int64) bool {
	if lastPrice == 0 {
		return false
	}
	if o.Side == domain.OrderSideBuy {
		return lastPrice >= o.StopPrice
	}
	return lastPrice <= o.StopPrice
}

// BestUserBid returns the highest-priority resting bid.
func (b *Book) BestUserBid() (BookEntry, bool) {
	return b.bids.Min()
}

// BestUserAsk returns the highest-priority resting ask.
func (b *Book) BestUserAsk() (BookEntry, bool) {
	return b.asks.Min()
}

// BestBid returns the best available bid across the synthetic quote and
// user resting orders.
func (b *Book) BestBid() (price, size int64, ok bool) {
	if entry, found := b.bids.Min(); found {
		price, size, ok = entry.Price, entry.Order.RemainingQuantity(), true
	}
	if b.quoteBid > 0 && b.quoteBidSize > 0 && (!ok || b.quoteBid > price) {
		price, size, ok = b.quoteBid, b.quoteBidSize, true
	}
	return price, size, ok
}

// BestAsk returns the best available ask across the synthetic quote and
// user resting orders.
func (b *Book) BestAsk() (price, size int64, ok bool) {
	if entry, found := b.asks.Min(); found {
		price, size, ok = entry.Price, entry.Order.RemainingQuantity(), true
	}
	if b.quoteAsk > 0 && b.quoteAskSize > 0 && (!ok || b.quoteAsk < price) {
		price, size, ok = b.quoteAsk, b.quoteAskSize, true
	}
	return price, size, ok
}

// Spread returns best_ask − best_bid. ok is false when either side is absent.
func (b *Book) Spread() (int64, bool) {
	bid, _, bidOK := b.BestBid()
	ask, _, askOK := b.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return ask - bid, true
}

// SpreadBps returns the spread in basis points of the midpoint.
// ok is false when either side is absent.
func (b *Book) SpreadBps() (int64, bool) {
	spread, ok := b.Spread()
	if !ok {
		return 0, false
	}
	mid, _ := b.MidPrice()
	if mid == 0 {
		return 0, false
	}
	return spread * 10000 / mid, true
}

// MidPrice returns the quote midpoint. ok is false when either side is absent.
func (b *Book) MidPrice() (int64, bool) {
	bid, _, bidOK := b.BestBid()
	ask, _, askOK := b.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// setQuote replaces the synthetic market-maker quote. Caller holds the
// book write lock.
func (b *Book) setQuote(bid, bidSize, ask, askSize int64) {
	b.quoteBid = bid
	b.quoteBidSize = bidSize
	b.quoteAsk = ask
	b.quoteAskSize = askSize
}

// recordTrade folds a trade into the daily statistics. Caller holds the
// book write lock.
func (b *Book) recordTrade(price, qty int64) {
	b.lastPrice = price
	if b.dayHigh == 0 || price > b.dayHigh {
		b.dayHigh = price
	}
	if b.dayLow == 0 || price < b.dayLow {
		b.dayLow = price
	}
	b.dayVolume += qty
	b.dayTurnover += price * qty
	b.tradeCount++
}

// ResetDay clears the daily statistics at session rollover. The last
// trade price carries over as the next session's reference.
func (b *Book) ResetDay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dayHigh = 0
	b.dayLow = 0
	b.dayVolume = 0
	b.dayTurnover = 0
	b.tradeCount = 0
}

// Snapshot returns a point-in-time view of the book for market data
// consumers.
func (b *Book) Snapshot() domain.MarketSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// snapshotLocked builds the snapshot. Caller holds the book lock.
func (b *Book) snapshotLocked() domain.MarketSnapshot {
	snap := domain.MarketSnapshot{
		Instrument: b.instrument,
		LastPrice:  b.lastPrice,
		Volume:     b.dayVolume,
		TakenAt:    time.Now(),
	}
	if bid, size, ok := b.BestBid(); ok {
		snap.Bid, snap.BidSize = bid, size
	}
	if ask, size, ok := b.BestAsk(); ok {
		snap.Ask, snap.AskSize = ask, size
	}
	if bps, ok := b.SpreadBps(); ok {
		snap.SpreadBps = bps
	}
	return snap
}

// Stats returns the daily statistics for the book.
func (b *Book) Stats() (lastPrice, high, low, volume, turnover, trades int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice, b.dayHigh, b.dayLow, b.dayVolume, b.dayTurnover, b.tradeCount
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending. The synthetic quote is included as its
// own level when present.
func (b *Book) TopBids(n int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := topLevels(b.bids, n)
	if b.quoteBid > 0 && b.quoteBidSize > 0 {
		levels = mergeQuoteLevel(levels, b.quoteBid, b.quoteBidSize, n, func(quote, level int64) bool {
			return quote > level
		})
	}
	return levels
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending. The synthetic quote is included as its
// own level when present.
func (b *Book) TopAsks(n int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := topLevels(b.asks, n)
	if b.quoteAsk > 0 && b.quoteAskSize > 0 {
		levels = mergeQuoteLevel(levels, b.quoteAsk, b.quoteAskSize, n, func(quote, level int64) bool {
			return quote < level
		})
	}
	return levels
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[BookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry BookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity()
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity(),
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// mergeQuoteLevel inserts the synthetic quote into an ordered level
// slice, keeping at most n levels. better reports whether the quote
// price sorts ahead of a level price.
func mergeQuoteLevel(levels []PriceLevel, price, size int64, n int, better func(quote, level int64) bool) []PriceLevel {
	idx := len(levels)
	for i, lv := range levels {
		if lv.Price == price {
			levels[i].TotalQuantity += size
			levels[i].OrderCount++
			return levels
		}
		if better(price, lv.Price) {
			idx = i
			break
		}
	}
	levels = append(levels, PriceLevel{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = PriceLevel{Price: price, TotalQuantity: size, OrderCount: 1}
	if len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// BookManager is a thread-safe map of instrument → Book.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*Book),
	}
}

// GetOrCreate returns the book for the given instrument, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(instrument string) *Book {
	bm.mu.RLock()
	book, ok := bm.books[instrument]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[instrument]; ok {
		return book
	}
	book = NewBook(instrument)
	bm.books[instrument] = book
	return book
}

// All returns every book currently managed, in unspecified order.
func (bm *BookManager) All() []*Book {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	out := make([]*Book, 0, len(bm.books))
	for _, b := range bm.books {
		out = append(out, b)
	}
	return out
}
