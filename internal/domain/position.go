package domain

import "time"

// Position tracks a user's signed holding in one instrument. Positive
// quantity is long, negative is short. AvgCost is the weighted-average
// entry price of the open quantity; RealizedPnL accumulates as the
// position is reduced or reversed.
type Position struct {
	UserID      string
	Instrument  string
	Quantity    int64
	AvgCost     int64 // cents
	RealizedPnL int64 // cents
	UpdatedAt   time.Time
}

// MarketValue returns the absolute value of the position at the given
// price, in cents.
func (p *Position) MarketValue(price int64) int64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return qty * price
}

// UnrealizedPnL returns the open profit or loss at the given price.
func (p *Position) UnrealizedPnL(price int64) int64 {
	return (price - p.AvgCost) * p.Quantity
}

// Apply updates the position for a fill of qty at price on the given
// side. Same-direction fills re-average the cost. Opposite-direction
// fills realize P&L proportionally on the closed quantity; a fill that
// closes the position resets cost to zero, and a fill larger than the
// open quantity reverses the position and re-bases cost at the fill
// price.
func (p *Position) Apply(side OrderSide, qty, price int64, at time.Time) {
	delta := qty
	if side == OrderSideSell {
		delta = -qty
	}
	defer func() { p.UpdatedAt = at }()

	// Flat or adding in the same direction: weighted-average cost.
	if p.Quantity == 0 || (p.Quantity > 0) == (delta > 0) {
		open := p.Quantity
		if open < 0 {
			open = -open
		}
		p.AvgCost = (open*p.AvgCost + qty*price) / (open + qty)
		p.Quantity += delta
		return
	}

	// Reducing or reversing: realize on the closed quantity.
	open := p.Quantity
	if open < 0 {
		open = -open
	}
	closed := qty
	if closed > open {
		closed = open
	}
	if p.Quantity > 0 {
		p.RealizedPnL += (price - p.AvgCost) * closed
	} else {
		p.RealizedPnL += (p.AvgCost - price) * closed
	}

	p.Quantity += delta
	if p.Quantity == 0 {
		p.AvgCost = 0
	} else if qty > open {
		// Reversal: the remainder opens a new position at the fill price.
		p.AvgCost = price
	}
}
