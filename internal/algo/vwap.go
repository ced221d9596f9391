package algo

import (
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// volumeProfiles are the historical intraday volume shapes used for
// VWAP slice sizing. Each profile spans 8 buckets and sums to 1.0:
// standard is the classic U-shape, aggressive front-loads, passive
// back-loads.
var volumeProfiles = map[domain.VolumeProfile][8]float64{
	domain.ProfileStandard:   {0.12, 0.15, 0.11, 0.09, 0.08, 0.10, 0.13, 0.22},
	domain.ProfileAggressive: {0.15, 0.20, 0.18, 0.15, 0.12, 0.10, 0.06, 0.04},
	domain.ProfilePassive:    {0.05, 0.08, 0.10, 0.12, 0.15, 0.18, 0.20, 0.12},
}

// vwapStrategy sizes slices proportional to an expected intraday
// volume profile.
type vwapStrategy struct {
	weights [8]float64
}

// GenerateSchedule allocates floor(total × weight) to each of the 8
// profile buckets, spaced evenly across the window, and appends any
// rounding leftover to the final slice so quantities sum exactly.
func (s *vwapStrategy) GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error) {
	interval := a.EndTime.Sub(a.StartTime) / time.Duration(len(s.weights))

	steps := make([]ScheduledStep, 0, len(s.weights))
	var allocated int64
	for i, w := range s.weights {
		qty := int64(float64(a.TotalQuantity) * w)
		if i == len(s.weights)-1 {
			qty = a.TotalQuantity - allocated
		}
		allocated += qty
		if qty == 0 {
			continue
		}
		steps = append(steps, ScheduledStep{
			Index:    len(steps),
			At:       a.StartTime.Add(time.Duration(i) * interval),
			Quantity: qty,
		})
	}
	return steps, nil
}

func (s *vwapStrategy) ShouldExecute(_ *domain.AlgorithmicOrder, _ domain.MarketSnapshot, _ time.Time) (bool, string) {
	return true, ""
}

func (s *vwapStrategy) StepQuantity(_ *domain.AlgorithmicOrder, target int64, _ domain.MarketSnapshot) int64 {
	return target
}

// Price submits a marketable limit at the far touch: the ask for buys,
// the bid for sells. Falls back to a market order when the side is
// absent.
func (s *vwapStrategy) Price(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot) (domain.OrderType, int64) {
	if a.Side == domain.OrderSideBuy {
		if snap.Ask > 0 {
			return domain.OrderTypeLimit, snap.Ask
		}
	} else if snap.Bid > 0 {
		return domain.OrderTypeLimit, snap.Bid
	}
	return domain.OrderTypeMarket, 0
}

func (s *vwapStrategy) TickDriven() bool {
	return false
}
