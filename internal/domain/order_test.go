package domain

import (
	"testing"
	"time"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusPending, OrderStatusSubmitted, true},
		{OrderStatusPending, OrderStatusRejected, true},
		{OrderStatusSubmitted, OrderStatusAcknowledged, true},
		{OrderStatusSubmitted, OrderStatusRejected, true},
		{OrderStatusAcknowledged, OrderStatusPartiallyFilled, true},
		{OrderStatusAcknowledged, OrderStatusFilled, true},
		{OrderStatusAcknowledged, OrderStatusExpired, true},
		{OrderStatusPartiallyFilled, OrderStatusPartiallyFilled, true},
		{OrderStatusPartiallyFilled, OrderStatusFilled, true},
		{OrderStatusPartiallyFilled, OrderStatusCancelled, true},
		{OrderStatusFilled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusFilled, false},
		{OrderStatusRejected, OrderStatusSubmitted, false},
		{OrderStatusExpired, OrderStatusAcknowledged, false},
		{OrderStatusPending, OrderStatusFilled, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestSetStatusRejectionLeavesOrderUnchanged(t *testing.T) {
	o := &Order{Status: OrderStatusFilled}
	if err := o.SetStatus(OrderStatusCancelled); err != ErrInvalidStateTransition {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if o.Status != OrderStatusFilled {
		t.Errorf("status mutated on rejected transition: %s", o.Status)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []OrderStatus{OrderStatusPending, OrderStatusSubmitted, OrderStatusAcknowledged, OrderStatusPartiallyFilled}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestApplyFillAccumulatesWeightedAverage(t *testing.T) {
	o := &Order{
		OrderID:  "o1",
		Quantity: 100,
		Status:   OrderStatusAcknowledged,
	}
	now := time.Now()

	o.ApplyFill(&Fill{OrderID: "o1", Quantity: 40, Price: 10000, ExecutedAt: now})
	if o.Status != OrderStatusPartiallyFilled {
		t.Fatalf("expected partially_filled, got %s", o.Status)
	}
	if o.FilledQuantity != 40 || o.AvgFillPrice != 10000 {
		t.Fatalf("after first fill: filled=%d avg=%d", o.FilledQuantity, o.AvgFillPrice)
	}

	o.ApplyFill(&Fill{OrderID: "o1", Quantity: 60, Price: 10100, ExecutedAt: now})
	if o.Status != OrderStatusFilled {
		t.Fatalf("expected filled, got %s", o.Status)
	}
	// (40×10000 + 60×10100) / 100 = 10060
	if o.AvgFillPrice != 10060 {
		t.Errorf("avg fill price = %d, want 10060", o.AvgFillPrice)
	}
	if o.CompletedAt == nil {
		t.Error("completed_at not set on full fill")
	}
	if o.RemainingQuantity() != 0 {
		t.Errorf("remaining = %d, want 0", o.RemainingQuantity())
	}
}

func TestFillRatio(t *testing.T) {
	o := &Order{Quantity: 200, FilledQuantity: 50}
	if r := o.FillRatio(); r != 0.25 {
		t.Errorf("fill ratio = %v, want 0.25", r)
	}
	zero := &Order{}
	if r := zero.FillRatio(); r != 0 {
		t.Errorf("fill ratio on zero quantity = %v, want 0", r)
	}
}

func TestSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell {
		t.Error("buy opposite should be sell")
	}
	if OrderSideSell.Opposite() != OrderSideBuy {
		t.Error("sell opposite should be buy")
	}
}
