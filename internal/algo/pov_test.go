package algo

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/quantlab/papersim/internal/domain"
)

func TestParticipationQuantity(t *testing.T) {
	tests := []struct {
		name      string
		volume    int64
		rate      float64
		remaining int64
		want      int64
	}{
		{"plain participation", 5000, 0.20, 10000, 1000},
		{"capped at remaining", 5000, 0.20, 800, 800},
		{"rounds down", 999, 0.10, 10000, 99},
		{"no volume", 0, 0.20, 800, 0},
		{"nothing remaining", 5000, 0.20, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeParticipationQuantity(tt.volume, tt.rate, tt.remaining)
			if got != tt.want {
				t.Errorf("ComputeParticipationQuantity(%d, %v, %d) = %d, want %d",
					tt.volume, tt.rate, tt.remaining, got, tt.want)
			}
		})
	}
}

// The participation target never exceeds remaining quantity and never
// goes negative, for any inputs.
func TestParticipationQuantityBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		volume := rapid.Int64Range(-1000, 10_000_000).Draw(t, "volume")
		rate := rapid.Float64Range(0, 1).Draw(t, "rate")
		remaining := rapid.Int64Range(-1000, 1_000_000).Draw(t, "remaining")

		got := ComputeParticipationQuantity(volume, rate, remaining)
		if got < 0 {
			t.Fatalf("negative quantity %d", got)
		}
		if remaining > 0 && got > remaining {
			t.Fatalf("quantity %d exceeds remaining %d", got, remaining)
		}
		if volume > 0 && got > volume {
			t.Fatalf("quantity %d exceeds observed volume %d with rate %v", got, volume, rate)
		}
	})
}

func TestPOVStepQuantity(t *testing.T) {
	s := &povStrategy{rate: 0.20, tick: time.Second}
	a := twapOrder(800, 0, time.Hour)
	a.Algorithm = domain.AlgorithmPOV

	snap := domain.MarketSnapshot{Volume: 5000}
	if got := s.StepQuantity(a, a.TotalQuantity, snap); got != 800 {
		t.Errorf("StepQuantity = %d, want 800 (capped at remaining)", got)
	}

	a.ExecutedQuantity = 700
	if got := s.StepQuantity(a, a.TotalQuantity, snap); got != 100 {
		t.Errorf("StepQuantity = %d, want 100", got)
	}
}

func TestPOVSingleInitialStep(t *testing.T) {
	s := &povStrategy{rate: 0.20, tick: time.Second}
	a := twapOrder(800, 0, time.Hour)
	a.Algorithm = domain.AlgorithmPOV

	steps, err := s.GenerateSchedule(a)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(steps))
	}
	if !steps[0].At.Equal(a.StartTime) {
		t.Errorf("step at %v, want start time", steps[0].At)
	}
	if !s.TickDriven() {
		t.Error("participation strategy must be tick driven")
	}
}
