package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	UserID        string   `json:"user_id"`
	ClientOrderID string   `json:"client_order_id"`
	Instrument    string   `json:"instrument"`
	Type          string   `json:"type"`
	Side          string   `json:"side"`
	Quantity      int64    `json:"quantity"`
	LimitPrice    *float64 `json:"limit_price"`
	StopPrice     *float64 `json:"stop_price"`
	TimeInForce   string   `json:"time_in_force"`
	ExpiresAt     *string  `json:"expires_at"`
}

// orderResponse is the JSON representation of an order. Nullable fields
// use pointers and are always present.
type orderResponse struct {
	OrderID           string         `json:"order_id"`
	UserID            string         `json:"user_id"`
	ClientOrderID     string         `json:"client_order_id,omitempty"`
	Instrument        string         `json:"instrument"`
	Type              string         `json:"type"`
	Side              string         `json:"side"`
	Quantity          int64          `json:"quantity"`
	LimitPrice        *float64       `json:"limit_price"`
	StopPrice         *float64       `json:"stop_price"`
	TimeInForce       string         `json:"time_in_force"`
	Status            string         `json:"status"`
	FilledQuantity    int64          `json:"filled_quantity"`
	RemainingQuantity int64          `json:"remaining_quantity"`
	AvgFillPrice      *float64       `json:"avg_fill_price"`
	RejectReason      string         `json:"reject_reason,omitempty"`
	ParentAlgoID      string         `json:"parent_algo_id,omitempty"`
	CreatedAt         string         `json:"created_at"`
	SubmittedAt       *string        `json:"submitted_at"`
	CompletedAt       *string        `json:"completed_at"`
	ExpiresAt         *string        `json:"expires_at"`
	Fills             []fillResponse `json:"fills"`
}

// fillResponse is a single fill in an order response.
type fillResponse struct {
	FillID     string  `json:"fill_id"`
	TradeID    string  `json:"trade_id"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	Gross      float64 `json:"gross"`
	Fee        float64 `json:"fee"`
	Net        float64 `json:"net"`
	Liquidity  string  `json:"liquidity"`
	ExecutedAt string  `json:"executed_at"`
}

// Submit handles POST /orders.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "expires_at must be a valid RFC 3339 timestamp")
			return
		}
		expiresAt = &t
	}

	order, err := h.orderSvc.Submit(r.Context(), service.SubmitOrderRequest{
		UserID:        req.UserID,
		ClientOrderID: req.ClientOrderID,
		Instrument:    req.Instrument,
		Type:          domain.OrderType(req.Type),
		Side:          domain.OrderSide(req.Side),
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		TimeInForce:   domain.TimeInForce(req.TimeInForce),
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	status := http.StatusCreated
	if order.Status == domain.OrderStatusRejected {
		// The order exists as an audit record but was denied admission.
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, buildOrderResponse(order))
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Get(chi.URLParam(r, "order_id"))
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// Fills handles GET /orders/{order_id}/fills.
func (h *OrderHandler) Fills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.orderSvc.Fills(chi.URLParam(r, "order_id"))
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"fills": buildFillResponses(fills),
	})
}

// Cancel handles DELETE /orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Cancel(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// buildOrderResponse converts a domain order to its JSON shape. Prices
// are rendered in dollars.
func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.OrderID,
		UserID:            o.UserID,
		ClientOrderID:     o.ClientOrderID,
		Instrument:        o.Instrument,
		Type:              string(o.Type),
		Side:              string(o.Side),
		Quantity:          o.Quantity,
		TimeInForce:       string(o.TimeInForce),
		Status:            string(o.Status),
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity(),
		RejectReason:      o.RejectReason,
		ParentAlgoID:      o.ParentAlgoID,
		CreatedAt:         formatTime(o.CreatedAt),
		SubmittedAt:       formatTimePtr(o.SubmittedAt),
		CompletedAt:       formatTimePtr(o.CompletedAt),
		ExpiresAt:         formatTimePtr(o.ExpiresAt),
		Fills:             buildFillResponses(o.Fills),
	}
	if o.LimitPrice > 0 {
		v := domain.CentsToDollars(o.LimitPrice)
		resp.LimitPrice = &v
	}
	if o.StopPrice > 0 {
		v := domain.CentsToDollars(o.StopPrice)
		resp.StopPrice = &v
	}
	if o.FilledQuantity > 0 {
		v := domain.CentsToDollars(o.AvgFillPrice)
		resp.AvgFillPrice = &v
	}
	return resp
}

// buildFillResponses converts domain fills to response fills.
func buildFillResponses(fills []*domain.Fill) []fillResponse {
	result := make([]fillResponse, len(fills))
	for i, f := range fills {
		result[i] = fillResponse{
			FillID:     f.FillID,
			TradeID:    f.TradeID,
			Quantity:   f.Quantity,
			Price:      domain.CentsToDollars(f.Price),
			Gross:      domain.CentsToDollars(f.Gross),
			Fee:        domain.CentsToDollars(f.Fee),
			Net:        domain.CentsToDollars(f.Net),
			Liquidity:  string(f.Liquidity),
			ExecutedAt: formatTime(f.ExecutedAt),
		}
	}
	return result
}

// mapOrderError maps domain errors to HTTP responses for order
// endpoints.
func mapOrderError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrInstrumentNotFound):
		WriteError(w, http.StatusNotFound, "instrument_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		WriteError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrNoLiquidity):
		WriteError(w, http.StatusConflict, "no_liquidity", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
