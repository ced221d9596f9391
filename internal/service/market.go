package service

import (
	"fmt"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/store"
)

// RegisterInstrumentRequest represents the input for instrument
// registration.
type RegisterInstrumentRequest struct {
	Symbol         string
	Name           string
	Sector         string
	ReferencePrice float64 // dollars; seeds the synthetic quote
	MinOrderSize   int64
	MaxOrderSize   int64
}

// DepthResponse is the aggregated order book for an instrument,
// synthetic quote included.
type DepthResponse struct {
	Instrument string
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
}

// StatsResponse carries an instrument's session statistics.
type StatsResponse struct {
	Instrument string
	LastPrice  int64
	DayHigh    int64
	DayLow     int64
	DayVolume  int64
	Turnover   int64
	TradeCount int64
}

// MarketService handles instrument registration and market data
// queries.
type MarketService struct {
	books       *engine.BookManager
	market      *engine.MarketData
	matcher     *engine.Matcher
	trades      *store.TradeStore
	instruments *domain.InstrumentRegistry
}

// NewMarketService creates a new MarketService.
func NewMarketService(
	books *engine.BookManager,
	market *engine.MarketData,
	matcher *engine.Matcher,
	trades *store.TradeStore,
	instruments *domain.InstrumentRegistry,
) *MarketService {
	return &MarketService{
		books:       books,
		market:      market,
		matcher:     matcher,
		trades:      trades,
		instruments: instruments,
	}
}

// RegisterInstrument validates the request, registers the instrument,
// and seeds the synthetic quote around the reference price.
func (s *MarketService) RegisterInstrument(req RegisterInstrumentRequest) (*domain.Instrument, error) {
	if !instrumentRegex.MatchString(req.Symbol) {
		return nil, &domain.ValidationError{
			Message: "symbol must match ^[A-Z]{1,10}$",
		}
	}
	if req.Name == "" || len(req.Name) > 128 {
		return nil, &domain.ValidationError{
			Message: "name must be between 1 and 128 characters",
		}
	}
	if req.ReferencePrice <= 0 {
		return nil, &domain.ValidationError{
			Message: "reference_price must be greater than 0",
		}
	}
	refCents, err := domain.DollarsToCents(req.ReferencePrice)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "reference_price must have at most 2 decimal places",
		}
	}
	if req.MinOrderSize < 0 || req.MaxOrderSize < 0 {
		return nil, &domain.ValidationError{
			Message: "order size bounds must not be negative",
		}
	}
	if req.MaxOrderSize > 0 && req.MinOrderSize > req.MaxOrderSize {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("min_order_size %d exceeds max_order_size %d", req.MinOrderSize, req.MaxOrderSize),
		}
	}

	inst := &domain.Instrument{
		Symbol:       req.Symbol,
		Name:         req.Name,
		Sector:       req.Sector,
		Tradable:     true,
		MinOrderSize: req.MinOrderSize,
		MaxOrderSize: req.MaxOrderSize,
	}
	s.instruments.Register(inst)
	s.matcher.SeedReference(req.Symbol, refCents)

	return inst, nil
}

// ListInstruments returns all registered instruments.
func (s *MarketService) ListInstruments() []*domain.Instrument {
	return s.instruments.List()
}

// GetQuote returns the current market snapshot for an instrument.
func (s *MarketService) GetQuote(instrument string) (domain.MarketSnapshot, error) {
	if !s.instruments.Exists(instrument) {
		return domain.MarketSnapshot{}, domain.ErrInstrumentNotFound
	}
	return s.market.GetSnapshot(instrument), nil
}

// GetDepth returns the top levels of the aggregated book, synthetic
// quote merged in.
func (s *MarketService) GetDepth(instrument string, levels int) (*DepthResponse, error) {
	if !s.instruments.Exists(instrument) {
		return nil, domain.ErrInstrumentNotFound
	}
	if levels < 1 || levels > 50 {
		return nil, &domain.ValidationError{
			Message: "levels must be between 1 and 50",
		}
	}

	book := s.books.GetOrCreate(instrument)
	return &DepthResponse{
		Instrument: instrument,
		Bids:       book.TopBids(levels),
		Asks:       book.TopAsks(levels),
	}, nil
}

// GetTrades returns the most recent trades for an instrument, newest
// first, capped at limit.
func (s *MarketService) GetTrades(instrument string, limit int) ([]*domain.Trade, error) {
	if !s.instruments.Exists(instrument) {
		return nil, domain.ErrInstrumentNotFound
	}
	if limit < 1 || limit > 500 {
		return nil, &domain.ValidationError{
			Message: "limit must be between 1 and 500",
		}
	}

	all := s.trades.GetByInstrument(instrument)
	out := make([]*domain.Trade, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// GetStats returns an instrument's session statistics.
func (s *MarketService) GetStats(instrument string) (*StatsResponse, error) {
	if !s.instruments.Exists(instrument) {
		return nil, domain.ErrInstrumentNotFound
	}

	book := s.books.GetOrCreate(instrument)
	last, high, low, volume, turnover, trades := book.Stats()
	return &StatsResponse{
		Instrument: instrument,
		LastPrice:  last,
		DayHigh:    high,
		DayLow:     low,
		DayVolume:  volume,
		Turnover:   turnover,
		TradeCount: trades,
	}, nil
}
