package algo

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/quantlab/papersim/internal/domain"
)

func TestStrategyForValidation(t *testing.T) {
	base := func() *domain.AlgorithmicOrder {
		return twapOrder(1000, 10, time.Hour)
	}

	tests := []struct {
		name    string
		mutate  func(*domain.AlgorithmicOrder)
		wantErr error
	}{
		{
			name:   "twap defaults",
			mutate: func(a *domain.AlgorithmicOrder) { a.Params.SliceCount = 0 },
		},
		{
			name:    "twap too many slices",
			mutate:  func(a *domain.AlgorithmicOrder) { a.Params.SliceCount = 101 },
			wantErr: &domain.ValidationError{},
		},
		{
			name: "vwap unknown profile",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmVWAP
				a.Params.Profile = "inverted"
			},
			wantErr: &domain.ValidationError{},
		},
		{
			name: "vwap default profile",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmVWAP
			},
		},
		{
			name: "iceberg display too large",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmIceberg
				a.Params.DisplaySize = 1000
			},
			wantErr: &domain.ValidationError{},
		},
		{
			name: "iceberg valid",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmIceberg
				a.Params.DisplaySize = 100
			},
		},
		{
			name: "sniper patience out of range",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmSniper
				a.Params.PatienceSeconds = 5
			},
			wantErr: &domain.ValidationError{},
		},
		{
			name: "participation rate out of range",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = domain.AlgorithmPOV
				a.Params.ParticipationRate = 1.5
			},
			wantErr: &domain.ValidationError{},
		},
		{
			name: "unknown algorithm",
			mutate: func(a *domain.AlgorithmicOrder) {
				a.Algorithm = "momentum"
			},
			wantErr: domain.ErrUnknownAlgorithmType,
		},
	}

	rng := newLockedRand(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			tt.mutate(a)
			_, err := strategyFor(a, rng, time.Second)

			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			case *domain.ValidationError:
				var ve *domain.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error = %v, want ValidationError", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Errorf("error = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestVWAPScheduleProfiles(t *testing.T) {
	a := twapOrder(10000, 0, 4*time.Hour)
	a.Algorithm = domain.AlgorithmVWAP

	for profile, weights := range volumeProfiles {
		s := &vwapStrategy{weights: weights}
		steps, err := s.GenerateSchedule(a)
		if err != nil {
			t.Fatalf("%s: GenerateSchedule: %v", profile, err)
		}

		var sum int64
		for _, step := range steps {
			sum += step.Quantity
		}
		if sum != a.TotalQuantity {
			t.Errorf("%s: quantity sum = %d, want %d", profile, sum, a.TotalQuantity)
		}
	}
}

func TestVWAPScheduleShape(t *testing.T) {
	a := twapOrder(10000, 0, 4*time.Hour)
	a.Algorithm = domain.AlgorithmVWAP

	aggressive := &vwapStrategy{weights: volumeProfiles[domain.ProfileAggressive]}
	steps, err := aggressive.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if steps[0].Quantity <= steps[len(steps)-1].Quantity {
		t.Errorf("aggressive profile should front-load: first %d, last %d",
			steps[0].Quantity, steps[len(steps)-1].Quantity)
	}

	passive := &vwapStrategy{weights: volumeProfiles[domain.ProfilePassive]}
	steps, err = passive.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if steps[0].Quantity >= steps[len(steps)-2].Quantity {
		t.Errorf("passive profile should back-load: first %d, seventh %d",
			steps[0].Quantity, steps[len(steps)-2].Quantity)
	}
}

func TestIcebergSchedule(t *testing.T) {
	a := twapOrder(1000, 0, time.Hour)
	a.Algorithm = domain.AlgorithmIceberg
	s := &icebergStrategy{display: 100, rng: newLockedRand(1)}

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(steps) != 10 {
		t.Fatalf("steps = %d, want 10", len(steps))
	}
	for i, step := range steps {
		if step.Quantity != 100 {
			t.Errorf("step %d quantity = %d, want 100", i, step.Quantity)
		}
		if !step.At.Equal(a.StartTime) {
			t.Errorf("step %d at %v, want start time", i, step.At)
		}
	}
}

func TestIcebergScheduleSliceCap(t *testing.T) {
	a := twapOrder(5000, 0, time.Hour)
	a.Algorithm = domain.AlgorithmIceberg
	s := &icebergStrategy{display: 1, rng: newLockedRand(1)}

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(steps) != maxIcebergSlices {
		t.Fatalf("steps = %d, want %d", len(steps), maxIcebergSlices)
	}

	var sum int64
	for _, step := range steps {
		sum += step.Quantity
	}
	if sum != 5000 {
		t.Errorf("quantity sum = %d, want 5000", sum)
	}
	// The remainder folds into the final slice.
	if steps[len(steps)-1].Quantity != 5000-int64(maxIcebergSlices)+1 {
		t.Errorf("final slice = %d", steps[len(steps)-1].Quantity)
	}
}

// Static schedules conserve quantity exactly for any total.
func TestScheduleConservesQuantity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(1, 1_000_000).Draw(t, "total")
		slices := rapid.IntRange(1, maxTWAPSlices).Draw(t, "slices")
		jitter := rapid.Bool().Draw(t, "jitter")

		a := twapOrder(total, slices, time.Hour)
		a.Params.TimingJitter = jitter

		strategies := []Strategy{
			&twapStrategy{slices: slices, rng: newLockedRand(1)},
			&vwapStrategy{weights: volumeProfiles[domain.ProfileStandard]},
		}
		if total > 1 {
			display := rapid.Int64Range(1, total-1).Draw(t, "display")
			strategies = append(strategies, &icebergStrategy{
				display: display,
				jitter:  jitter,
				rng:     newLockedRand(1),
			})
		}

		for _, s := range strategies {
			steps, err := s.GenerateSchedule(a)
			if err != nil {
				t.Fatalf("GenerateSchedule: %v", err)
			}
			var sum int64
			for _, step := range steps {
				if step.Quantity <= 0 {
					t.Fatalf("non-positive step quantity %d", step.Quantity)
				}
				sum += step.Quantity
			}
			if sum != total {
				t.Fatalf("quantity sum = %d, want %d", sum, total)
			}
		}
	})
}
