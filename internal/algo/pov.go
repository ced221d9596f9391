package algo

import (
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// povStrategy targets a fixed percentage of observed market volume per
// tick.
type povStrategy struct {
	rate float64
	tick time.Duration
}

// GenerateSchedule emits the first tick's step for the full quantity at
// the start time; subsequent ticks are generated as the order
// progresses, each sized from the market volume observed at execution.
func (s *povStrategy) GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error) {
	return []ScheduledStep{{Index: 0, At: a.StartTime, Quantity: a.TotalQuantity}}, nil
}

func (s *povStrategy) ShouldExecute(_ *domain.AlgorithmicOrder, _ domain.MarketSnapshot, _ time.Time) (bool, string) {
	return true, ""
}

// StepQuantity targets floor(volume × rate), capped at the order's
// remaining quantity. The cap is mandatory: the target must never
// exceed what is left to execute.
func (s *povStrategy) StepQuantity(a *domain.AlgorithmicOrder, _ int64, snap domain.MarketSnapshot) int64 {
	return ComputeParticipationQuantity(snap.Volume, s.rate, a.RemainingQuantity())
}

// ComputeParticipationQuantity returns floor(volume × rate) capped at
// remaining, and never negative.
func ComputeParticipationQuantity(volume int64, rate float64, remaining int64) int64 {
	if volume <= 0 || rate <= 0 || remaining <= 0 {
		return 0
	}
	target := int64(float64(volume) * rate)
	if target > remaining {
		target = remaining
	}
	return target
}

// Price submits a marketable limit at the far touch, falling back to a
// market order when the side is absent.
func (s *povStrategy) Price(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot) (domain.OrderType, int64) {
	if a.Side == domain.OrderSideBuy {
		if snap.Ask > 0 {
			return domain.OrderTypeLimit, snap.Ask
		}
	} else if snap.Bid > 0 {
		return domain.OrderTypeLimit, snap.Bid
	}
	return domain.OrderTypeMarket, 0
}

func (s *povStrategy) TickDriven() bool {
	return true
}
