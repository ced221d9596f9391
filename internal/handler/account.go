package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, orderSvc: orderSvc}
}

// createAccountRequest is the JSON request body for POST /accounts.
type createAccountRequest struct {
	AccountID   string  `json:"account_id"`
	Name        string  `json:"name"`
	InitialCash float64 `json:"initial_cash"`
}

// accountResponse is the JSON representation of an account.
type accountResponse struct {
	AccountID     string  `json:"account_id"`
	Name          string  `json:"name"`
	CashBalance   float64 `json:"cash_balance"`
	DayTradeCount int64   `json:"day_trade_count"`
	CreatedAt     string  `json:"created_at"`
}

// Create handles POST /accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := h.accountSvc.Create(service.CreateAccountRequest{
		AccountID:   req.AccountID,
		Name:        req.Name,
		InitialCash: req.InitialCash,
	})
	if err != nil {
		mapAccountError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildAccountResponse(account))
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountSvc.Get(chi.URLParam(r, "account_id"))
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

// positionResponse is one valued position in the portfolio response.
type positionResponse struct {
	Instrument    string  `json:"instrument"`
	Quantity      int64   `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	MarkPrice     float64 `json:"mark_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UpdatedAt     string  `json:"updated_at"`
}

// portfolioResponse is the JSON representation of a valued portfolio.
type portfolioResponse struct {
	AccountID     string             `json:"account_id"`
	CashBalance   float64            `json:"cash_balance"`
	Positions     []positionResponse `json:"positions"`
	PositionValue float64            `json:"position_value"`
	TotalEquity   float64            `json:"total_equity"`
	DayTradeCount int64              `json:"day_trade_count"`
	AsOf          string             `json:"as_of"`
}

// GetPortfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.accountSvc.GetPortfolio(chi.URLParam(r, "account_id"))
	if err != nil {
		mapAccountError(w, err)
		return
	}

	positions := make([]positionResponse, len(portfolio.Positions))
	for i, p := range portfolio.Positions {
		positions[i] = positionResponse{
			Instrument:    p.Instrument,
			Quantity:      p.Quantity,
			AvgCost:       domain.CentsToDollars(p.AvgCost),
			MarkPrice:     domain.CentsToDollars(p.MarkPrice),
			MarketValue:   domain.CentsToDollars(p.MarketValue),
			UnrealizedPnL: domain.CentsToDollars(p.UnrealizedPnL),
			RealizedPnL:   domain.CentsToDollars(p.RealizedPnL),
			UpdatedAt:     formatTime(p.UpdatedAt),
		}
	}

	WriteJSON(w, http.StatusOK, portfolioResponse{
		AccountID:     portfolio.AccountID,
		CashBalance:   domain.CentsToDollars(portfolio.CashBalance),
		Positions:     positions,
		PositionValue: domain.CentsToDollars(portfolio.PositionValue),
		TotalEquity:   domain.CentsToDollars(portfolio.TotalEquity),
		DayTradeCount: portfolio.DayTradeCount,
		AsOf:          formatTime(portfolio.AsOf),
	})
}

// listOrdersResponse is the JSON envelope for order listings.
type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// ListOrders handles GET /accounts/{account_id}/orders with optional
// status, page, and limit query parameters.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	var status *domain.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.OrderStatus(v)
		status = &s
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	orders, total, err := h.orderSvc.List(accountID, status, page, limit)
	if err != nil {
		mapAccountError(w, err)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildAccountResponse(a *domain.Account) accountResponse {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	return accountResponse{
		AccountID:     a.AccountID,
		Name:          a.Name,
		CashBalance:   domain.CentsToDollars(a.CashBalance),
		DayTradeCount: a.DayTradeCount,
		CreatedAt:     formatTime(a.CreatedAt),
	}
}

// mapAccountError maps domain errors to HTTP responses for account
// endpoints.
func mapAccountError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		WriteError(w, http.StatusConflict, "account_already_exists", err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
