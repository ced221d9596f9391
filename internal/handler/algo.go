package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/service"
)

// AlgoHandler handles HTTP requests for algorithmic order endpoints.
type AlgoHandler struct {
	algoSvc *service.AlgoService
}

// NewAlgoHandler creates a new AlgoHandler.
func NewAlgoHandler(algoSvc *service.AlgoService) *AlgoHandler {
	return &AlgoHandler{algoSvc: algoSvc}
}

// startAlgoRequest is the JSON request body for POST /algos.
type startAlgoRequest struct {
	UserID        string   `json:"user_id"`
	Instrument    string   `json:"instrument"`
	Side          string   `json:"side"`
	Algorithm     string   `json:"algorithm"`
	TotalQuantity int64    `json:"total_quantity"`
	LimitPrice    *float64 `json:"limit_price"`
	StartTime     *string  `json:"start_time"`
	EndTime       *string  `json:"end_time"`

	// Strategy parameters; only those for the chosen algorithm are
	// consulted.
	SliceCount          int     `json:"slice_count"`
	TimingJitter        bool    `json:"timing_jitter"`
	PriceImprovementBps int64   `json:"price_improvement_bps"`
	Profile             string  `json:"profile"`
	DisplaySize         int64   `json:"display_size"`
	SizeJitter          bool    `json:"size_jitter"`
	MaxSpreadBps        int64   `json:"max_spread_bps"`
	MinVolume           int64   `json:"min_volume"`
	PatienceSeconds     int64   `json:"patience_seconds"`
	ParticipationRate   float64 `json:"participation_rate"`
}

// algoOrderResponse is the JSON representation of an algorithmic order.
type algoOrderResponse struct {
	AlgoOrderID             string   `json:"algo_order_id"`
	UserID                  string   `json:"user_id"`
	Instrument              string   `json:"instrument"`
	Side                    string   `json:"side"`
	Algorithm               string   `json:"algorithm"`
	TotalQuantity           int64    `json:"total_quantity"`
	ExecutedQuantity        int64    `json:"executed_quantity"`
	FillRatio               float64  `json:"fill_ratio"`
	LimitPrice              *float64 `json:"limit_price"`
	Status                  string   `json:"status"`
	RejectReasons           []string `json:"reject_reasons,omitempty"`
	AvgExecPrice            *float64 `json:"avg_exec_price"`
	TotalSlippageBps        int64    `json:"total_slippage_bps"`
	ImplementationShortfall float64  `json:"implementation_shortfall"`
	StartTime               string   `json:"start_time"`
	EndTime                 string   `json:"end_time"`
	CreatedAt               string   `json:"created_at"`
	StartedAt               *string  `json:"started_at"`
	CompletedAt             *string  `json:"completed_at"`
}

// executionResponse is one scheduled step in an algorithmic order
// response.
type executionResponse struct {
	ExecutionID    string  `json:"execution_id"`
	StepIndex      int     `json:"step_index"`
	ScheduledAt    string  `json:"scheduled_at"`
	TargetQuantity int64   `json:"target_quantity"`
	ExecutedQty    int64   `json:"executed_quantity"`
	ChildOrderID   string  `json:"child_order_id,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	ExecutedAt     *string `json:"executed_at"`
}

// Start handles POST /algos.
func (h *AlgoHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAlgoRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	startTime, err := parseTimePtr(req.StartTime, "start_time")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	endTime, err := parseTimePtr(req.EndTime, "end_time")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	a, err := h.algoSvc.Start(r.Context(), service.StartAlgoRequest{
		UserID:        req.UserID,
		Instrument:    req.Instrument,
		Side:          domain.OrderSide(req.Side),
		Algorithm:     domain.AlgorithmType(req.Algorithm),
		TotalQuantity: req.TotalQuantity,
		LimitPrice:    req.LimitPrice,
		StartTime:     startTime,
		EndTime:       endTime,
		Params: domain.AlgoParams{
			SliceCount:          req.SliceCount,
			TimingJitter:        req.TimingJitter,
			PriceImprovementBps: req.PriceImprovementBps,
			Profile:             domain.VolumeProfile(req.Profile),
			DisplaySize:         req.DisplaySize,
			SizeJitter:          req.SizeJitter,
			MaxSpreadBps:        req.MaxSpreadBps,
			MinVolume:           req.MinVolume,
			PatienceSeconds:     req.PatienceSeconds,
			ParticipationRate:   req.ParticipationRate,
		},
	})
	if err != nil {
		mapAlgoError(w, err)
		return
	}

	status := http.StatusCreated
	if a.Status == domain.AlgoStatusRejected {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, buildAlgoResponse(a))
}

// Get handles GET /algos/{algo_order_id}.
func (h *AlgoHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.algoSvc.Get(chi.URLParam(r, "algo_order_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}

	executions := make([]executionResponse, len(resp.Executions))
	for i, e := range resp.Executions {
		executions[i] = executionResponse{
			ExecutionID:    e.ExecutionID,
			StepIndex:      e.StepIndex,
			ScheduledAt:    formatTime(e.ScheduledAt),
			TargetQuantity: e.TargetQuantity,
			ExecutedQty:    e.ExecutedQty,
			ChildOrderID:   e.ChildOrderID,
			Status:         string(e.Status),
			Error:          e.Error,
			ExecutedAt:     formatTimePtr(e.ExecutedAt),
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"order":      buildAlgoResponse(resp.Order),
		"executions": executions,
	})
}

// ChildOrders handles GET /algos/{algo_order_id}/orders.
func (h *AlgoHandler) ChildOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.algoSvc.ChildOrders(chi.URLParam(r, "algo_order_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// List handles GET /accounts/{account_id}/algos.
func (h *AlgoHandler) List(w http.ResponseWriter, r *http.Request) {
	algos, err := h.algoSvc.List(chi.URLParam(r, "account_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}

	out := make([]algoOrderResponse, len(algos))
	for i, a := range algos {
		out[i] = buildAlgoResponse(a)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"algo_orders": out})
}

// Pause handles POST /algos/{algo_order_id}/pause.
func (h *AlgoHandler) Pause(w http.ResponseWriter, r *http.Request) {
	a, err := h.algoSvc.Pause(r.Context(), chi.URLParam(r, "algo_order_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAlgoResponse(a))
}

// Resume handles POST /algos/{algo_order_id}/resume.
func (h *AlgoHandler) Resume(w http.ResponseWriter, r *http.Request) {
	a, err := h.algoSvc.Resume(r.Context(), chi.URLParam(r, "algo_order_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAlgoResponse(a))
}

// Cancel handles DELETE /algos/{algo_order_id}.
func (h *AlgoHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, err := h.algoSvc.Cancel(r.Context(), chi.URLParam(r, "algo_order_id"))
	if err != nil {
		mapAlgoError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAlgoResponse(a))
}

func buildAlgoResponse(a *domain.AlgorithmicOrder) algoOrderResponse {
	resp := algoOrderResponse{
		AlgoOrderID:             a.AlgoOrderID,
		UserID:                  a.UserID,
		Instrument:              a.Instrument,
		Side:                    string(a.Side),
		Algorithm:               string(a.Algorithm),
		TotalQuantity:           a.TotalQuantity,
		ExecutedQuantity:        a.ExecutedQuantity,
		FillRatio:               a.FillRatio(),
		Status:                  string(a.Status),
		RejectReasons:           a.RejectReasons,
		TotalSlippageBps:        a.TotalSlippageBps,
		ImplementationShortfall: a.ImplementationShortfall,
		StartTime:               formatTime(a.StartTime),
		EndTime:                 formatTime(a.EndTime),
		CreatedAt:               formatTime(a.CreatedAt),
		StartedAt:               formatTimePtr(a.StartedAt),
		CompletedAt:             formatTimePtr(a.CompletedAt),
	}
	if a.LimitPrice > 0 {
		v := domain.CentsToDollars(a.LimitPrice)
		resp.LimitPrice = &v
	}
	if a.ExecutedQuantity > 0 {
		v := domain.CentsToDollars(a.AvgExecPrice)
		resp.AvgExecPrice = &v
	}
	return resp
}

func parseTimePtr(s *string, field string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, errors.New(field + " must be a valid RFC 3339 timestamp")
	}
	return &t, nil
}

// mapAlgoError maps domain errors to HTTP responses for algorithmic
// order endpoints.
func mapAlgoError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, domain.ErrAlgoOrderNotFound):
		WriteError(w, http.StatusNotFound, "algo_order_not_found", err.Error())
	case errors.Is(err, domain.ErrInstrumentNotFound):
		WriteError(w, http.StatusNotFound, "instrument_not_found", err.Error())
	case errors.Is(err, domain.ErrUnknownAlgorithmType):
		WriteError(w, http.StatusBadRequest, "unknown_algorithm", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		WriteError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
