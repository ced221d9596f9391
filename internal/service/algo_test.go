package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

func (f *fixture) twapRequest(minutes int, slices int) StartAlgoRequest {
	start := f.clock.Now()
	end := start.Add(time.Duration(minutes) * time.Minute)
	return StartAlgoRequest{
		UserID:        "alice",
		Instrument:    "ACME",
		Side:          domain.OrderSideBuy,
		Algorithm:     domain.AlgorithmTWAP,
		TotalQuantity: 100,
		StartTime:     &start,
		EndTime:       &end,
		Params: domain.AlgoParams{
			SliceCount:          slices,
			PriceImprovementBps: 10,
		},
	}
}

func TestStartAlgoValidation(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	shortEnd := f.clock.Now().Add(30 * time.Second)
	tests := []struct {
		name   string
		mutate func(r *StartAlgoRequest)
	}{
		{"bad user id", func(r *StartAlgoRequest) { r.UserID = "no spaces" }},
		{"bad instrument", func(r *StartAlgoRequest) { r.Instrument = "acme" }},
		{"bad side", func(r *StartAlgoRequest) { r.Side = "hold" }},
		{"unknown algorithm", func(r *StartAlgoRequest) { r.Algorithm = "magic" }},
		{"zero quantity", func(r *StartAlgoRequest) { r.TotalQuantity = 0 }},
		{"negative limit price", func(r *StartAlgoRequest) { r.LimitPrice = floatPtr(-1) }},
		{"sub-cent limit price", func(r *StartAlgoRequest) { r.LimitPrice = floatPtr(100.001) }},
		{"window under a minute", func(r *StartAlgoRequest) { r.EndTime = &shortEnd }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := f.twapRequest(10, 2)
			tc.mutate(&req)
			if _, err := f.algoSvc.Start(context.Background(), req); !isValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStartAlgoUnknownAccountAndInstrument(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	req := f.twapRequest(10, 2)
	req.UserID = "ghost"
	if _, err := f.algoSvc.Start(context.Background(), req); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	req = f.twapRequest(10, 2)
	req.Instrument = "ZZZZ"
	if _, err := f.algoSvc.Start(context.Background(), req); !errors.Is(err, domain.ErrInstrumentNotFound) {
		t.Fatalf("expected ErrInstrumentNotFound, got %v", err)
	}
}

func TestStartAlgoRiskRejected(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	req := f.twapRequest(10, 2)
	req.TotalQuantity = 20000 // above the per-order risk ceiling

	a, err := f.algoSvc.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != domain.AlgoStatusRejected {
		t.Fatalf("status = %s, want rejected", a.Status)
	}
	if len(a.RejectReasons) == 0 {
		t.Fatal("expected reject reasons")
	}
}

func TestTWAPRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	a, err := f.algoSvc.Start(context.Background(), f.twapRequest(2, 2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != domain.AlgoStatusRunning {
		t.Fatalf("status = %s, want running", a.Status)
	}

	resp, err := f.algoSvc.Get(a.AlgoOrderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(resp.Executions) != 2 {
		t.Fatalf("scheduled steps = %d, want 2", len(resp.Executions))
	}
	for _, e := range resp.Executions {
		if e.TargetQuantity != 50 {
			t.Fatalf("step target = %d, want 50", e.TargetQuantity)
		}
	}

	f.clock.Advance(a.EndTime)

	if a.Status != domain.AlgoStatusCompleted {
		t.Fatalf("status = %s, want completed", a.Status)
	}
	if a.ExecutedQuantity != 100 {
		t.Fatalf("executed = %d, want 100", a.ExecutedQuantity)
	}
	if a.AvgExecPrice == 0 {
		t.Fatal("expected an average execution price")
	}
	if a.CompletedAt == nil {
		t.Fatal("expected a completion timestamp")
	}

	children, err := f.algoSvc.ChildOrders(a.AlgoOrderID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("child count = %d, want 2", len(children))
	}
	for _, c := range children {
		if c.ParentAlgoID != a.AlgoOrderID {
			t.Fatalf("child %s has parent %q", c.OrderID, c.ParentAlgoID)
		}
		if c.Status != domain.OrderStatusFilled {
			t.Fatalf("child %s status = %s, want filled", c.OrderID, c.Status)
		}
	}
}

func TestPauseBlocksStepsAndResumeRestarts(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	a, err := f.algoSvc.Start(context.Background(), f.twapRequest(10, 2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.algoSvc.Pause(context.Background(), a.AlgoOrderID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if a.Status != domain.AlgoStatusPaused {
		t.Fatalf("status = %s, want paused", a.Status)
	}

	// Step times come and go while paused; nothing executes.
	f.clock.Advance(a.StartTime.Add(time.Minute))
	if a.ExecutedQuantity != 0 {
		t.Fatalf("executed while paused = %d", a.ExecutedQuantity)
	}

	if _, err := f.algoSvc.Pause(context.Background(), a.AlgoOrderID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on double pause, got %v", err)
	}

	if _, err := f.algoSvc.Resume(context.Background(), a.AlgoOrderID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	f.clock.Advance(a.EndTime)
	if a.Status != domain.AlgoStatusCompleted {
		t.Fatalf("status after resume = %s, want completed", a.Status)
	}
	if a.ExecutedQuantity != 100 {
		t.Fatalf("executed = %d, want 100", a.ExecutedQuantity)
	}
}

func TestCancelAlgoOrder(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	a, err := f.algoSvc.Start(context.Background(), f.twapRequest(10, 2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	cancelled, err := f.algoSvc.Cancel(context.Background(), a.AlgoOrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.AlgoStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// Pending steps are dead after cancellation.
	f.clock.Advance(a.EndTime)
	if a.ExecutedQuantity != 0 {
		t.Fatalf("executed after cancel = %d", a.ExecutedQuantity)
	}

	if _, err := f.algoSvc.Cancel(context.Background(), a.AlgoOrderID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on second cancel, got %v", err)
	}
}

func TestAlgoQueries(t *testing.T) {
	f := newFixture(t)
	f.setup(t, "alice", 100000)

	if _, err := f.algoSvc.Get("missing"); !errors.Is(err, domain.ErrAlgoOrderNotFound) {
		t.Fatalf("expected ErrAlgoOrderNotFound, got %v", err)
	}
	if _, err := f.algoSvc.ChildOrders("missing"); !errors.Is(err, domain.ErrAlgoOrderNotFound) {
		t.Fatalf("expected ErrAlgoOrderNotFound, got %v", err)
	}
	if _, err := f.algoSvc.List("ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	a, err := f.algoSvc.Start(context.Background(), f.twapRequest(10, 2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	listed, err := f.algoSvc.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].AlgoOrderID != a.AlgoOrderID {
		t.Fatalf("listed = %+v", listed)
	}
}
