package algo

import (
	"fmt"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

const (
	defaultSniperPatience  = 300 // seconds
	minSniperPatience      = 10
	maxSniperPatience      = 3600
	defaultSniperSpreadBps = 20
	defaultSniperMinVolume = 1000
)

// sniperStrategy waits for favorable market conditions, or a patience
// timeout, then executes in one shot.
type sniperStrategy struct {
	patience  time.Duration
	maxSpread int64
	minVolume int64
	tick      time.Duration
}

// GenerateSchedule emits a single step for the full quantity at the
// start time. The step re-evaluates its gate every tick until it fires.
func (s *sniperStrategy) GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error) {
	return []ScheduledStep{{Index: 0, At: a.StartTime, Quantity: a.TotalQuantity}}, nil
}

// ShouldExecute evaluates the snipe gate. The patience timeout is
// checked first and overrides every market condition; otherwise the
// spread must be tight enough, volume deep enough, and the price
// at-or-better than the order's limit for its side.
func (s *sniperStrategy) ShouldExecute(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot, now time.Time) (bool, string) {
	if now.Sub(a.StartTime) > s.patience {
		return true, "patience timeout"
	}

	if snap.SpreadBps == 0 || snap.SpreadBps > s.maxSpread {
		return false, fmt.Sprintf("spread %d bps above %d", snap.SpreadBps, s.maxSpread)
	}
	if snap.Volume < s.minVolume {
		return false, fmt.Sprintf("volume %d below %d", snap.Volume, s.minVolume)
	}
	if a.LimitPrice > 0 {
		if a.Side == domain.OrderSideBuy {
			price := snap.Ask
			if price == 0 {
				price = snap.LastPrice
			}
			if price > a.LimitPrice {
				return false, fmt.Sprintf("price %d above limit %d", price, a.LimitPrice)
			}
		} else {
			price := snap.Bid
			if price == 0 {
				price = snap.LastPrice
			}
			if price < a.LimitPrice {
				return false, fmt.Sprintf("price %d below limit %d", price, a.LimitPrice)
			}
		}
	}
	return true, "conditions met"
}

func (s *sniperStrategy) StepQuantity(a *domain.AlgorithmicOrder, _ int64, _ domain.MarketSnapshot) int64 {
	return a.RemainingQuantity()
}

// Price takes liquidity: a market order, bounded by the parent's limit
// when one is set.
func (s *sniperStrategy) Price(a *domain.AlgorithmicOrder, _ domain.MarketSnapshot) (domain.OrderType, int64) {
	if a.LimitPrice > 0 {
		return domain.OrderTypeLimit, a.LimitPrice
	}
	return domain.OrderTypeMarket, 0
}

func (s *sniperStrategy) TickDriven() bool {
	return true
}
