package algo

import (
	"testing"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

func icebergOrder(total, display int64, jitter bool) *domain.AlgorithmicOrder {
	start := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return &domain.AlgorithmicOrder{
		AlgoOrderID:   "algo-1",
		UserID:        "user-1",
		Instrument:    "ACME",
		Side:          domain.OrderSideBuy,
		Algorithm:     domain.AlgorithmIceberg,
		TotalQuantity: total,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Params:        domain.AlgoParams{DisplaySize: display, SizeJitter: jitter},
	}
}

func TestIcebergScheduleEvenSlices(t *testing.T) {
	a := icebergOrder(1000, 100, false)
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
			t.Errorf("step %d quantity = %d, want display size 100", i, step.Quantity)
		}
		if !step.At.Equal(a.StartTime) {
			t.Errorf("step %d at %v, want start time", i, step.At)
		}
	}
}

func TestIcebergScheduleFinalPartialSlice(t *testing.T) {
	a := icebergOrder(250, 100, false)
	s := &icebergStrategy{display: 100, rng: newLockedRand(1)}

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(steps))
	}
	if steps[2].Quantity != 50 {
		t.Errorf("final slice = %d, want 50", steps[2].Quantity)
	}
}

func TestIcebergScheduleJitterConserves(t *testing.T) {
	a := icebergOrder(5000, 100, true)
	s := &icebergStrategy{display: 100, jitter: true, rng: newLockedRand(7)}

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}

	// The first slice is exactly the display size; jittered slices stay
	// within ±20% of it. Quantities always sum to the total.
	if steps[0].Quantity != 100 {
		t.Errorf("first slice = %d, want 100", steps[0].Quantity)
	}
	var sum int64
	for i, step := range steps[:len(steps)-1] {
		sum += step.Quantity
		if step.Quantity < 80 || step.Quantity > 120 {
			t.Errorf("slice %d = %d, outside jitter band", i, step.Quantity)
		}
	}
	sum += steps[len(steps)-1].Quantity
	if sum != 5000 {
		t.Errorf("quantity sum = %d, want 5000", sum)
	}
}

func TestIcebergScheduleSliceCapFoldsRemainder(t *testing.T) {
	// 1 share displayed against a huge total hits the slice cap; the
	// remainder folds into the last slice.
	a := icebergOrder(5000, 1, false)
	s := &icebergStrategy{display: 1, rng: newLockedRand(1)}

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(steps) != maxIcebergSlices {
		t.Fatalf("steps = %d, want cap %d", len(steps), maxIcebergSlices)
	}
	var sum int64
	for _, step := range steps {
		sum += step.Quantity
	}
	if sum != 5000 {
		t.Errorf("quantity sum = %d, want 5000", sum)
	}
	if steps[len(steps)-1].Quantity != 5000-int64(maxIcebergSlices)+1 {
		t.Errorf("final slice = %d, want folded remainder", steps[len(steps)-1].Quantity)
	}
}
