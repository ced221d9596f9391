package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/store"
)

// ValidOrderStatuses lists all order status values accepted as list
// filters.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:         true,
	domain.OrderStatusSubmitted:       true,
	domain.OrderStatusAcknowledged:    true,
	domain.OrderStatusRejected:        true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusExpired:         true,
}

var validOrderTypes = map[domain.OrderType]bool{
	domain.OrderTypeMarket:    true,
	domain.OrderTypeLimit:     true,
	domain.OrderTypeStop:      true,
	domain.OrderTypeStopLimit: true,
}

var validTimeInForce = map[domain.TimeInForce]bool{
	domain.TimeInForceDay: true,
	domain.TimeInForceGTC: true,
	domain.TimeInForceIOC: true,
	domain.TimeInForceFOK: true,
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	UserID        string
	ClientOrderID string
	Instrument    string
	Type          domain.OrderType
	Side          domain.OrderSide
	Quantity      int64
	LimitPrice    *float64 // dollars; required for limit and stop_limit
	StopPrice     *float64 // dollars; required for stop and stop_limit
	TimeInForce   domain.TimeInForce
	ExpiresAt     *time.Time // optional; day orders default to next UTC midnight
}

// OrderService handles order submission, retrieval, cancellation, and
// listing.
type OrderService struct {
	matcher     *engine.Matcher
	expiry      *engine.ExpiryManager
	accounts    *store.AccountStore
	orders      *store.OrderStore
	fills       *store.FillStore
	instruments *domain.InstrumentRegistry
}

// NewOrderService creates a new OrderService with the given
// dependencies.
func NewOrderService(
	matcher *engine.Matcher,
	expiry *engine.ExpiryManager,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	fills *store.FillStore,
	instruments *domain.InstrumentRegistry,
) *OrderService {
	return &OrderService{
		matcher:     matcher,
		expiry:      expiry,
		accounts:    accounts,
		orders:      orders,
		fills:       fills,
		instruments: instruments,
	}
}

// Submit validates the request and runs the order through risk
// admission and matching. A risk-rejected order is returned with
// rejected status and no error; validation failures return a
// ValidationError before any order is created.
func (s *OrderService) Submit(ctx context.Context, req SubmitOrderRequest) (*domain.Order, error) {
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
	if !validOrderTypes[req.Type] {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("unknown order type: %s. Must be one of: market, limit, stop, stop_limit", req.Type),
		}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{
			Message: "quantity must be a positive integer",
		}
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = domain.TimeInForceDay
	}
	if !validTimeInForce[tif] {
		return nil, &domain.ValidationError{
			Message: "time_in_force must be one of: day, gtc, ioc, fok",
		}
	}

	limitCents, err := s.priceCents(req.LimitPrice, "limit_price")
	if err != nil {
		return nil, err
	}
	stopCents, err := s.priceCents(req.StopPrice, "stop_price")
	if err != nil {
		return nil, err
	}

	needsLimit := req.Type == domain.OrderTypeLimit || req.Type == domain.OrderTypeStopLimit
	if needsLimit && limitCents == 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("limit_price is required for %s orders", req.Type),
		}
	}
	if !needsLimit && limitCents != 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("%s orders must not include limit_price", req.Type),
		}
	}
	needsStop := req.Type == domain.OrderTypeStop || req.Type == domain.OrderTypeStopLimit
	if needsStop && stopCents == 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("stop_price is required for %s orders", req.Type),
		}
	}
	if !needsStop && stopCents != 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("%s orders must not include stop_price", req.Type),
		}
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, &domain.ValidationError{
			Message: "expires_at must be a future timestamp",
		}
	}

	if !s.accounts.Exists(req.UserID) {
		return nil, domain.ErrAccountNotFound
	}
	if !s.instruments.Exists(req.Instrument) {
		return nil, domain.ErrInstrumentNotFound
	}

	order := &domain.Order{
		UserID:        req.UserID,
		ClientOrderID: req.ClientOrderID,
		Instrument:    req.Instrument,
		Type:          req.Type,
		Side:          req.Side,
		Quantity:      req.Quantity,
		LimitPrice:    limitCents,
		StopPrice:     stopCents,
		TimeInForce:   tif,
		ExpiresAt:     s.expiresAt(tif, req.ExpiresAt),
	}

	if _, err := s.matcher.Submit(ctx, order); err != nil {
		return nil, err
	}

	// Orders still working after the matching pass expire at their
	// deadline.
	if order.IsActive() && order.ExpiresAt != nil {
		s.expiry.Add(order)
	}

	return order, nil
}

func (s *OrderService) priceCents(price *float64, field string) (int64, error) {
	if price == nil {
		return 0, nil
	}
	if *price <= 0 {
		return 0, &domain.ValidationError{
			Message: fmt.Sprintf("%s must be greater than 0", field),
		}
	}
	cents, err := domain.DollarsToCents(*price)
	if err != nil {
		return 0, &domain.ValidationError{
			Message: fmt.Sprintf("%s must have at most 2 decimal places", field),
		}
	}
	return cents, nil
}

// expiresAt resolves an order's expiration deadline. Day orders without
// an explicit deadline expire at the next UTC midnight; GTC, IOC, and
// FOK orders carry no implicit deadline.
func (s *OrderService) expiresAt(tif domain.TimeInForce, explicit *time.Time) *time.Time {
	if explicit != nil {
		return explicit
	}
	if tif != domain.TimeInForceDay {
		return nil
	}
	sessionEnd := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return &sessionEnd
}

// Get retrieves an order by ID with its fills.
func (s *OrderService) Get(orderID string) (*domain.Order, error) {
	return s.orders.Get(orderID)
}

// Fills returns the fills recorded against an order.
func (s *OrderService) Fills(orderID string) ([]*domain.Fill, error) {
	if _, err := s.orders.Get(orderID); err != nil {
		return nil, err
	}
	return s.fills.GetByOrder(orderID), nil
}

// Cancel cancels an active order.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.matcher.Cancel(ctx, orderID, "cancelled by user")
	if err != nil {
		return nil, err
	}
	s.expiry.Remove(orderID)
	return order, nil
}

// List returns a paginated list of a user's orders with optional status
// filtering, newest first.
func (s *OrderService) List(userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if !s.accounts.Exists(userID) {
		return nil, 0, domain.ErrAccountNotFound
	}
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("invalid status filter: %q", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	orders, total := s.orders.ListByUser(userID, status, page, limit)
	return orders, total, nil
}
