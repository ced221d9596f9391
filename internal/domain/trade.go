package domain

import "time"

// Trade represents a single match between a buy and a sell order.
// Trades are immutable once created.
type Trade struct {
	TradeID       string
	Instrument    string
	BuyOrderID    string
	SellOrderID   string
	Price         int64 // cents
	Quantity      int64
	AggressorSide OrderSide
	ExecutedAt    time.Time
}

// LiquidityFlag marks whether a fill added or removed liquidity.
type LiquidityFlag string

const (
	LiquidityMaker LiquidityFlag = "maker"
	LiquidityTaker LiquidityFlag = "taker"
)

// Fill is one order's share of a trade. Exactly one fill per
// participating order per trade.
type Fill struct {
	FillID     string
	OrderID    string
	TradeID    string
	Quantity   int64
	Price      int64 // cents
	Gross      int64 // cents, price × quantity
	Fee        int64 // cents
	Net        int64 // cents, gross plus fee for buys, gross minus fee for sells
	Liquidity  LiquidityFlag
	ExecutedAt time.Time
}

// NewFill builds a fill for one side of a trade, computing gross, fee,
// and net amounts. The fee rate is expressed in basis points of gross.
func NewFill(fillID, orderID string, t *Trade, qty, price int64, liquidity LiquidityFlag, side OrderSide, feeRateBps int64) *Fill {
	gross := price * qty
	fee := FeeOf(gross, feeRateBps)
	net := gross + fee
	if side == OrderSideSell {
		net = gross - fee
	}
	return &Fill{
		FillID:     fillID,
		OrderID:    orderID,
		TradeID:    t.TradeID,
		Quantity:   qty,
		Price:      price,
		Gross:      gross,
		Fee:        fee,
		Net:        net,
		Liquidity:  liquidity,
		ExecutedAt: t.ExecutedAt,
	}
}
