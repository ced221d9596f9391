package engine

import (
	"log/slog"
	"math"
)

// QuoteMode selects how the market maker widths its quotes.
type QuoteMode string

const (
	QuoteModeBasic    QuoteMode = "basic"
	QuoteModeAdaptive QuoteMode = "adaptive"
)

// Adaptive spreads are clamped to this band regardless of the
// volatility multiplier.
const (
	minAdaptiveSpreadBps = 5
	maxAdaptiveSpreadBps = 100
)

// MarketMaker generates synthetic bid/ask quotes around a reference
// price. It is the book's guaranteed liquidity source: after the first
// reference price is seen, the book is never quote-less.
type MarketMaker struct {
	mode          QuoteMode
	baseSpreadBps int64
	volMultiplier float64 // adaptive mode only
	quoteSize     int64
	logger        *slog.Logger
}

// NewMarketMaker creates a market maker with the given quoting mode,
// base spread in basis points, adaptive volatility multiplier, and
// per-side quote size.
func NewMarketMaker(mode QuoteMode, baseSpreadBps int64, volMultiplier float64, quoteSize int64, logger *slog.Logger) *MarketMaker {
	return &MarketMaker{
		mode:          mode,
		baseSpreadBps: baseSpreadBps,
		volMultiplier: volMultiplier,
		quoteSize:     quoteSize,
		logger:        logger,
	}
}

// SpreadBps returns the quoting spread in basis points for the current
// mode. Basic mode uses the configured constant; adaptive mode scales it
// by the volatility multiplier and clamps to [5,100] bps.
func (m *MarketMaker) SpreadBps() int64 {
	if m.mode != QuoteModeAdaptive {
		return m.baseSpreadBps
	}
	bps := int64(math.Round(float64(m.baseSpreadBps) * m.volMultiplier))
	if bps < minAdaptiveSpreadBps {
		bps = minAdaptiveSpreadBps
	}
	if bps > maxAdaptiveSpreadBps {
		bps = maxAdaptiveSpreadBps
	}
	return bps
}

// QuoteSize returns the per-side quote size.
func (m *MarketMaker) QuoteSize() int64 {
	return m.quoteSize
}

// refresh recomputes the book's synthetic quote around referencePrice:
// bid = reference − spread/2, ask = reference + spread/2, both at the
// configured quote size. The caller holds the book write lock.
func (m *MarketMaker) refresh(book *Book, referencePrice int64) {
	if referencePrice <= 0 {
		return
	}
	half := referencePrice * m.SpreadBps() / 10000 / 2
	// Integer cents: never let the quote collapse to a zero spread.
	if half == 0 {
		half = 1
	}
	book.setQuote(referencePrice-half, m.quoteSize, referencePrice+half, m.quoteSize)

	if m.logger != nil {
		m.logger.Debug("quotes refreshed",
			slog.String("instrument", book.instrument),
			slog.Int64("reference", referencePrice),
			slog.Int64("bid", referencePrice-half),
			slog.Int64("ask", referencePrice+half),
		)
	}
}

// RefreshQuotes recomputes the book's synthetic quote around
// referencePrice, taking the book write lock.
func (m *MarketMaker) RefreshQuotes(book *Book, referencePrice int64) {
	book.mu.Lock()
	defer book.mu.Unlock()
	m.refresh(book, referencePrice)
}
