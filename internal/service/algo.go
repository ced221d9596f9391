package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab/papersim/internal/algo"
	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/store"
)

var validAlgorithms = map[domain.AlgorithmType]bool{
	domain.AlgorithmTWAP:    true,
	domain.AlgorithmVWAP:    true,
	domain.AlgorithmIceberg: true,
	domain.AlgorithmSniper:  true,
	domain.AlgorithmPOV:     true,
}

// StartAlgoRequest represents the input for starting an algorithmic
// order.
type StartAlgoRequest struct {
	UserID        string
	Instrument    string
	Side          domain.OrderSide
	Algorithm     domain.AlgorithmType
	TotalQuantity int64
	LimitPrice    *float64   // dollars, optional
	StartTime     *time.Time // optional, defaults to now
	EndTime       *time.Time // optional, defaults to start + 1h
	Params        domain.AlgoParams
}

// AlgoOrderResponse pairs an algorithmic order with its execution
// steps.
type AlgoOrderResponse struct {
	Order      *domain.AlgorithmicOrder
	Executions []*domain.AlgorithmicExecution
}

// AlgoService handles the algorithmic order lifecycle.
type AlgoService struct {
	scheduler   *algo.Scheduler
	algos       *store.AlgoStore
	orders      *store.OrderStore
	accounts    *store.AccountStore
	instruments *domain.InstrumentRegistry
}

// NewAlgoService creates a new AlgoService.
func NewAlgoService(
	scheduler *algo.Scheduler,
	algos *store.AlgoStore,
	orders *store.OrderStore,
	accounts *store.AccountStore,
	instruments *domain.InstrumentRegistry,
) *AlgoService {
	return &AlgoService{
		scheduler:   scheduler,
		algos:       algos,
		orders:      orders,
		accounts:    accounts,
		instruments: instruments,
	}
}

// Start validates the request and hands the order to the scheduler. A
// risk-rejected order is returned with rejected status and no error.
func (s *AlgoService) Start(ctx context.Context, req StartAlgoRequest) (*domain.AlgorithmicOrder, error) {
	if !accountIDRegex.MatchString(req.UserID) {
		return nil, &domain.ValidationError{
			Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if !instrumentRegex.MatchString(req.Instrument) {
		return nil, &domain.ValidationError{
			Message: "instrument must match ^[A-Z]{1,10}$",
		}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if !validAlgorithms[req.Algorithm] {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("unknown algorithm: %s. Must be one of: twap, vwap, iceberg, sniper, participation_rate", req.Algorithm),
		}
	}
	if req.TotalQuantity <= 0 {
		return nil, &domain.ValidationError{
			Message: "total_quantity must be a positive integer",
		}
	}

	var limitCents int64
	if req.LimitPrice != nil {
		if *req.LimitPrice <= 0 {
			return nil, &domain.ValidationError{
				Message: "limit_price must be greater than 0",
			}
		}
		cents, err := domain.DollarsToCents(*req.LimitPrice)
		if err != nil {
			return nil, &domain.ValidationError{
				Message: "limit_price must have at most 2 decimal places",
			}
		}
		limitCents = cents
	}

	if !s.accounts.Exists(req.UserID) {
		return nil, domain.ErrAccountNotFound
	}
	if !s.instruments.Exists(req.Instrument) {
		return nil, domain.ErrInstrumentNotFound
	}

	a := &domain.AlgorithmicOrder{
		UserID:        req.UserID,
		Instrument:    req.Instrument,
		Side:          req.Side,
		Algorithm:     req.Algorithm,
		TotalQuantity: req.TotalQuantity,
		LimitPrice:    limitCents,
		Params:        req.Params,
	}
	if req.StartTime != nil {
		a.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		a.EndTime = *req.EndTime
	}

	return s.scheduler.Start(ctx, a)
}

// Get retrieves an algorithmic order with its execution steps.
func (s *AlgoService) Get(algoOrderID string) (*AlgoOrderResponse, error) {
	a, err := s.algos.Get(algoOrderID)
	if err != nil {
		return nil, err
	}
	return &AlgoOrderResponse{
		Order:      a,
		Executions: s.algos.Executions(algoOrderID),
	}, nil
}

// ChildOrders returns the child orders spawned by an algorithmic order.
func (s *AlgoService) ChildOrders(algoOrderID string) ([]*domain.Order, error) {
	if _, err := s.algos.Get(algoOrderID); err != nil {
		return nil, err
	}
	return s.orders.ListByParent(algoOrderID), nil
}

// List returns a user's algorithmic orders in creation order.
func (s *AlgoService) List(userID string) ([]*domain.AlgorithmicOrder, error) {
	if !s.accounts.Exists(userID) {
		return nil, domain.ErrAccountNotFound
	}
	return s.algos.ListByUser(userID), nil
}

// Pause suspends a running algorithmic order.
func (s *AlgoService) Pause(ctx context.Context, algoOrderID string) (*domain.AlgorithmicOrder, error) {
	return s.scheduler.Pause(ctx, algoOrderID)
}

// Resume restarts a paused algorithmic order.
func (s *AlgoService) Resume(ctx context.Context, algoOrderID string) (*domain.AlgorithmicOrder, error) {
	return s.scheduler.Resume(ctx, algoOrderID)
}

// Cancel cancels an algorithmic order and its active child orders.
func (s *AlgoService) Cancel(ctx context.Context, algoOrderID string) (*domain.AlgorithmicOrder, error) {
	return s.scheduler.Cancel(ctx, algoOrderID)
}
