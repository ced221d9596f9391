package algo

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// ScheduledStep is one planned slice of a parent order's quantity.
type ScheduledStep struct {
	Index    int
	At       time.Time
	Quantity int64
}

// Strategy computes a parent order's execution schedule and per-step
// behavior. Implementations are stateless; all state lives on the
// AlgorithmicOrder and its executions.
type Strategy interface {
	// GenerateSchedule produces the ordered step list for the order.
	// For statically scheduled strategies the quantities sum to
	// TotalQuantity exactly.
	GenerateSchedule(a *domain.AlgorithmicOrder) ([]ScheduledStep, error)

	// ShouldExecute gates a step against the current market. Gated
	// strategies return false to skip the tick and retry later; a
	// false result is not a failure. Ungated strategies always
	// return true.
	ShouldExecute(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot, now time.Time) (bool, string)

	// StepQuantity returns the quantity to execute for the step.
	// The scheduler caps the result at the order's remaining
	// quantity.
	StepQuantity(a *domain.AlgorithmicOrder, target int64, snap domain.MarketSnapshot) int64

	// Price determines the child order's type and limit price from
	// the market snapshot.
	Price(a *domain.AlgorithmicOrder, snap domain.MarketSnapshot) (domain.OrderType, int64)

	// TickDriven reports whether the strategy generates steps one
	// tick at a time rather than all upfront.
	TickDriven() bool
}

// lockedRand wraps a rand source for concurrent use across scheduler
// goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform value in [0,1).
func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// jitterFactor returns a uniform multiplier in [1−spread, 1+spread].
func (r *lockedRand) jitterFactor(spread float64) float64 {
	return 1 - spread + 2*spread*r.Float64()
}

// strategyFor builds the strategy for an algorithmic order, validating
// its parameters. Returns a ValidationError for out-of-range parameters
// and ErrUnknownAlgorithmType for an unrecognized algorithm.
func strategyFor(a *domain.AlgorithmicOrder, rng *lockedRand, tick time.Duration) (Strategy, error) {
	switch a.Algorithm {
	case domain.AlgorithmTWAP:
		n := a.Params.SliceCount
		if n == 0 {
			n = defaultTWAPSlices
		}
		if n < 1 || n > maxTWAPSlices {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("slice count must be between 1 and %d", maxTWAPSlices),
			}
		}
		return &twapStrategy{slices: n, rng: rng}, nil

	case domain.AlgorithmVWAP:
		profile := a.Params.Profile
		if profile == "" {
			profile = domain.ProfileStandard
		}
		weights, ok := volumeProfiles[profile]
		if !ok {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("unknown volume profile %q", profile),
			}
		}
		return &vwapStrategy{weights: weights}, nil

	case domain.AlgorithmIceberg:
		display := a.Params.DisplaySize
		if display <= 0 || display >= a.TotalQuantity {
			return nil, &domain.ValidationError{
				Message: "display size must be positive and less than total quantity",
			}
		}
		return &icebergStrategy{display: display, jitter: a.Params.SizeJitter, rng: rng}, nil

	case domain.AlgorithmSniper:
		patience := a.Params.PatienceSeconds
		if patience == 0 {
			patience = defaultSniperPatience
		}
		if patience < minSniperPatience || patience > maxSniperPatience {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("patience must be between %d and %d seconds",
					minSniperPatience, maxSniperPatience),
			}
		}
		maxSpread := a.Params.MaxSpreadBps
		if maxSpread == 0 {
			maxSpread = defaultSniperSpreadBps
		}
		minVolume := a.Params.MinVolume
		if minVolume == 0 {
			minVolume = defaultSniperMinVolume
		}
		return &sniperStrategy{
			patience:  time.Duration(patience) * time.Second,
			maxSpread: maxSpread,
			minVolume: minVolume,
			tick:      tick,
		}, nil

	case domain.AlgorithmPOV:
		rate := a.Params.ParticipationRate
		if rate <= 0 || rate > 1 {
			return nil, &domain.ValidationError{
				Message: "participation rate must be in (0, 1]",
			}
		}
		return &povStrategy{rate: rate, tick: tick}, nil
	}

	return nil, domain.ErrUnknownAlgorithmType
}
