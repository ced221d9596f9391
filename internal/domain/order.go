package domain

import "time"

// OrderType distinguishes how an order prices itself.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderSide indicates whether an order buys or sells the instrument.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// TimeInForce controls how long an order remains active.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusAcknowledged    OrderStatus = "acknowledged"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// orderTransitions maps each status to the set of statuses it may move to.
// Filled, cancelled, rejected, and expired are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:      {OrderStatusSubmitted, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusSubmitted:    {OrderStatusRejected, OrderStatusAcknowledged, OrderStatusCancelled},
	OrderStatusAcknowledged: {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired},
	OrderStatusPartiallyFilled: {
		OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired,
	},
}

// CanTransition reports whether an order in status from may move to status to.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order represents a buy or sell instruction submitted by a user, either
// directly or as a child of an algorithmic order.
type Order struct {
	OrderID        string
	UserID         string
	ClientOrderID  string
	Instrument     string
	Type           OrderType
	Side           OrderSide
	Quantity       int64
	LimitPrice     int64 // cents, 0 when unset
	StopPrice      int64 // cents, 0 when unset
	TimeInForce    TimeInForce
	Status         OrderStatus
	FilledQuantity int64
	AvgFillPrice   int64  // cents, volume-weighted
	RejectReason   string // set when status is rejected
	ParentAlgoID   string // empty for simple orders
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	CompletedAt    *time.Time
	ExpiresAt      *time.Time // session end for day orders
	Fills          []*Fill
}

// RemainingQuantity returns the quantity not yet filled.
func (o *Order) RemainingQuantity() int64 {
	return o.Quantity - o.FilledQuantity
}

// FillRatio returns filled quantity as a fraction of total quantity.
func (o *Order) FillRatio() float64 {
	if o.Quantity == 0 {
		return 0
	}
	return float64(o.FilledQuantity) / float64(o.Quantity)
}

// IsActive reports whether the order can still receive fills or be cancelled.
func (o *Order) IsActive() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusSubmitted, OrderStatusAcknowledged, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// SetStatus transitions the order to the given status. Returns
// ErrInvalidStateTransition when the move is not legal; the order is
// left unchanged on rejection.
func (o *Order) SetStatus(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidStateTransition
	}
	o.Status = to
	return nil
}

// ApplyFill records a fill against the order: accumulates filled
// quantity, recomputes the volume-weighted average fill price with
// integer arithmetic, and advances the status to partially_filled or
// filled based on cumulative quantity.
func (o *Order) ApplyFill(f *Fill) {
	prevNotional := o.AvgFillPrice * o.FilledQuantity
	o.Fills = append(o.Fills, f)
	o.FilledQuantity += f.Quantity
	if o.FilledQuantity > 0 {
		o.AvgFillPrice = (prevNotional + f.Price*f.Quantity) / o.FilledQuantity
	}
	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderStatusFilled
		now := f.ExecutedAt
		o.CompletedAt = &now
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}
