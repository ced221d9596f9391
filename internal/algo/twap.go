package algo

import (
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

const (
	defaultTWAPSlices = 10
	maxTWAPSlices     = 100

	// Timing jitter spread as a fraction of the slice interval.
	twapJitterSpread = 0.20
)

// twapStrategy splits the order into equal slices over equal time
// intervals across the execution window.
type twapStrategy struct {
	slices int
	rng    *lockedRand
}

// GenerateSchedule divides total quantity into n slices of total/n
// each, distributing the remainder to the first slices, spaced evenly
// across [start, end). Optional timing jitter shifts each slice by up
// to ±20% of the interval; the first slice is never jittered so the
// algorithm always starts on time.
func (s *twapStrategy) GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error) {
	n := int64(s.slices)
	base := a.TotalQuantity / n
	remainder := a.TotalQuantity % n
	interval := a.EndTime.Sub(a.StartTime) / time.Duration(n)

	steps := make([]ScheduledStep, 0, s.slices)
	for i := 0; i < s.slices; i++ {
		qty := base
		if int64(i) < remainder {
			qty++
		}
		if qty == 0 {
			continue
		}
		at := a.StartTime.Add(time.Duration(i) * interval)
		if a.Params.TimingJitter && i > 0 {
			offset := time.Duration(float64(interval) * twapJitterSpread * (2*s.rng.Float64() - 1))
			at = at.Add(offset)
		}
		steps = append(steps, ScheduledStep{Index: len(steps), At: at, Quantity: qty})
	}
	return steps, nil
}

func (s *twapStrategy) ShouldExecute(_ *domain.AlgorithmicOrder, _ domain.MarketSnapshot, _ time.Time) (bool, string) {
	return true, ""
}

func (s *twapStrategy) StepQuantity(_ *domain.AlgorithmicOrder, target int64, _ domain.MarketSnapshot) int64 {
	return target
}

// Price sets a marketable limit at the quote midpoint adjusted by the
// configured basis points in the order's favor of execution: above mid
// for buys, below mid for sells. Execution is at the resting price, so
// the adjustment buys fill probability, not a worse price. Falls back
// to a market order when no midpoint exists.
func (s *twapStrategy) Price(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot) (domain.OrderType, int64) {
	mid := snap.Mid()
	if mid <= 0 {
		return domain.OrderTypeMarket, 0
	}
	improvement := mid * a.Params.PriceImprovementBps / 10000
	if a.Side == domain.OrderSideBuy {
		return domain.OrderTypeLimit, mid + improvement
	}
	return domain.OrderTypeLimit, mid - improvement
}

func (s *twapStrategy) TickDriven() bool {
	return false
}
