package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/service"
)

// MarketHandler handles HTTP requests for instrument and market data
// endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// registerInstrumentRequest is the JSON request body for instrument
// registration.
type registerInstrumentRequest struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Sector         string  `json:"sector"`
	ReferencePrice float64 `json:"reference_price"`
	MinOrderSize   int64   `json:"min_order_size"`
	MaxOrderSize   int64   `json:"max_order_size"`
}

type instrumentResponse struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Sector       string `json:"sector"`
	Tradable     bool   `json:"tradable"`
	MinOrderSize int64  `json:"min_order_size"`
	MaxOrderSize int64  `json:"max_order_size"`
}

type quoteResponse struct {
	Instrument string   `json:"instrument"`
	Bid        *float64 `json:"bid"`
	Ask        *float64 `json:"ask"`
	BidSize    int64    `json:"bid_size"`
	AskSize    int64    `json:"ask_size"`
	LastPrice  *float64 `json:"last_price"`
	SpreadBps  int64    `json:"spread_bps"`
	Volume     int64    `json:"volume"`
	TakenAt    string   `json:"taken_at"`
}

type priceLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
}

type tradeResponse struct {
	TradeID       string  `json:"trade_id"`
	Instrument    string  `json:"instrument"`
	Price         float64 `json:"price"`
	Quantity      int64   `json:"quantity"`
	AggressorSide string  `json:"aggressor_side"`
	ExecutedAt    string  `json:"executed_at"`
}

// RegisterInstrument handles POST /instruments.
func (h *MarketHandler) RegisterInstrument(w http.ResponseWriter, r *http.Request) {
	var req registerInstrumentRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inst, err := h.marketSvc.RegisterInstrument(service.RegisterInstrumentRequest{
		Symbol:         req.Symbol,
		Name:           req.Name,
		Sector:         req.Sector,
		ReferencePrice: req.ReferencePrice,
		MinOrderSize:   req.MinOrderSize,
		MaxOrderSize:   req.MaxOrderSize,
	})
	if err != nil {
		mapMarketError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildInstrumentResponse(inst))
}

// ListInstruments handles GET /instruments.
func (h *MarketHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments := h.marketSvc.ListInstruments()

	out := make([]instrumentResponse, len(instruments))
	for i, inst := range instruments {
		out[i] = buildInstrumentResponse(inst)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"instruments": out})
}

// GetQuote handles GET /instruments/{symbol}/quote.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	snap, err := h.marketSvc.GetQuote(chi.URLParam(r, "symbol"))
	if err != nil {
		mapMarketError(w, err)
		return
	}

	resp := quoteResponse{
		Instrument: snap.Instrument,
		BidSize:    snap.BidSize,
		AskSize:    snap.AskSize,
		SpreadBps:  snap.SpreadBps,
		Volume:     snap.Volume,
		TakenAt:    formatTime(snap.TakenAt),
	}
	if snap.Bid > 0 {
		v := domain.CentsToDollars(snap.Bid)
		resp.Bid = &v
	}
	if snap.Ask > 0 {
		v := domain.CentsToDollars(snap.Ask)
		resp.Ask = &v
	}
	if snap.LastPrice > 0 {
		v := domain.CentsToDollars(snap.LastPrice)
		resp.LastPrice = &v
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetDepth handles GET /instruments/{symbol}/depth.
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	levels, err := queryInt(r, "levels", 10)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	depth, err := h.marketSvc.GetDepth(chi.URLParam(r, "symbol"), levels)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"instrument": depth.Instrument,
		"bids":       buildLevelResponses(depth.Bids),
		"asks":       buildLevelResponses(depth.Asks),
	})
}

// GetTrades handles GET /instruments/{symbol}/trades.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	trades, err := h.marketSvc.GetTrades(chi.URLParam(r, "symbol"), limit)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	out := make([]tradeResponse, len(trades))
	for i, t := range trades {
		out[i] = tradeResponse{
			TradeID:       t.TradeID,
			Instrument:    t.Instrument,
			Price:         domain.CentsToDollars(t.Price),
			Quantity:      t.Quantity,
			AggressorSide: string(t.AggressorSide),
			ExecutedAt:    formatTime(t.ExecutedAt),
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": out})
}

// GetStats handles GET /instruments/{symbol}/stats.
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.marketSvc.GetStats(chi.URLParam(r, "symbol"))
	if err != nil {
		mapMarketError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"instrument":  stats.Instrument,
		"last_price":  domain.CentsToDollars(stats.LastPrice),
		"day_high":    domain.CentsToDollars(stats.DayHigh),
		"day_low":     domain.CentsToDollars(stats.DayLow),
		"day_volume":  stats.DayVolume,
		"turnover":    domain.CentsToDollars(stats.Turnover),
		"trade_count": stats.TradeCount,
	})
}

func buildInstrumentResponse(inst *domain.Instrument) instrumentResponse {
	return instrumentResponse{
		Symbol:       inst.Symbol,
		Name:         inst.Name,
		Sector:       inst.Sector,
		Tradable:     inst.Tradable,
		MinOrderSize: inst.MinOrderSize,
		MaxOrderSize: inst.MaxOrderSize,
	}
}

func buildLevelResponses(levels []engine.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = priceLevelResponse{
			Price:         domain.CentsToDollars(l.Price),
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		}
	}
	return out
}

// mapMarketError maps domain errors to HTTP responses for market data
// endpoints.
func mapMarketError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInstrumentNotFound):
		WriteError(w, http.StatusNotFound, "instrument_not_found", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
