package algo

import (
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

const (
	// Hard cap on generated slices. Guards against misconfiguration
	// that would otherwise loop indefinitely.
	maxIcebergSlices = 1000

	// Size jitter spread applied to slices after the first.
	icebergJitterSpread = 0.20
)

// icebergStrategy repeatedly exposes only a small display quantity of
// the full order.
type icebergStrategy struct {
	display int64
	jitter  bool
	rng     *lockedRand
}

// GenerateSchedule emits display-size slices until the total is
// exhausted, all scheduled at the start time. With jitter enabled,
// slices after the first vary by ±20%. If the slice cap is reached,
// the remainder folds into the final slice so quantities still sum
// exactly.
func (s *icebergStrategy) GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error) {
	var steps []ScheduledStep
	remaining := a.TotalQuantity

	for remaining > 0 && len(steps) < maxIcebergSlices {
		qty := s.display
		if s.jitter && len(steps) > 0 {
			qty = int64(float64(s.display) * s.rng.jitterFactor(icebergJitterSpread))
			if qty < 1 {
				qty = 1
			}
		}
		if qty > remaining {
			qty = remaining
		}
		steps = append(steps, ScheduledStep{Index: len(steps), At: a.StartTime, Quantity: qty})
		remaining -= qty
	}
	if remaining > 0 {
		steps[len(steps)-1].Quantity += remaining
	}
	return steps, nil
}

func (s *icebergStrategy) ShouldExecute(_ *domain.AlgorithmicOrder, _ domain.MarketSnapshot, _ time.Time) (bool, string) {
	return true, ""
}

func (s *icebergStrategy) StepQuantity(_ *domain.AlgorithmicOrder, target int64, _ domain.MarketSnapshot) int64 {
	return target
}

// Price submits a marketable limit at the far touch, falling back to a
// market order when the side is absent.
func (s *icebergStrategy) Price(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot) (domain.OrderType, int64) {
	if a.Side == domain.OrderSideBuy {
		if snap.Ask > 0 {
			return domain.OrderTypeLimit, snap.Ask
		}
	} else if snap.Bid > 0 {
		return domain.OrderTypeLimit, snap.Bid
	}
	return domain.OrderTypeMarket, 0
}

func (s *icebergStrategy) TickDriven() bool {
	return false
}
