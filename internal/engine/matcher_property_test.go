package engine

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/quantlab/papersim/internal/domain"
)

// A run of random submissions never mints or destroys quantity: for
// every order, filled quantity equals the sum of its fills and never
// exceeds the order quantity, and every trade contributes exactly one
// fill per side.
func TestPropertyFillConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newMatcherFixture(t)
		f.seedAccount(t, "alice", 1<<40)
		f.seedAccount(t, "bob", 1<<40)
		f.matcher.SeedReference("ACME", 10000)

		users := []string{"alice", "bob"}
		numOrders := rapid.IntRange(1, 30).Draw(t, "numOrders")
		var submitted []*domain.Order

		for i := 0; i < numOrders; i++ {
			side := domain.OrderSideBuy
			if rapid.Bool().Draw(t, fmt.Sprintf("sell-%d", i)) {
				side = domain.OrderSideSell
			}
			order := &domain.Order{
				UserID:      rapid.SampledFrom(users).Draw(t, fmt.Sprintf("user-%d", i)),
				Instrument:  "ACME",
				Side:        side,
				Quantity:    rapid.Int64Range(1, 500).Draw(t, fmt.Sprintf("qty-%d", i)),
				TimeInForce: domain.TimeInForceGTC,
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("limit-%d", i)) {
				order.Type = domain.OrderTypeLimit
				order.LimitPrice = rapid.Int64Range(9000, 11000).Draw(t, fmt.Sprintf("price-%d", i))
			} else {
				order.Type = domain.OrderTypeMarket
				order.TimeInForce = domain.TimeInForceIOC
			}
			if _, err := f.matcher.Submit(context.Background(), order); err != nil {
				t.Fatalf("submit: %v", err)
			}
			submitted = append(submitted, order)

			// The book is never left crossed after a matching pass.
			book := f.books.GetOrCreate("ACME")
			if bid, _, bidOK := book.BestBid(); bidOK {
				if ask, _, askOK := book.BestAsk(); askOK && bid > ask {
					t.Fatalf("crossed book after submit: bid %d > ask %d", bid, ask)
				}
			}
		}

		for _, o := range submitted {
			var sum int64
			for _, fl := range o.Fills {
				sum += fl.Quantity
				if fl.Quantity <= 0 {
					t.Fatalf("order %s has a non-positive fill", o.OrderID)
				}
			}
			if sum != o.FilledQuantity {
				t.Fatalf("order %s: fills sum %d != filled %d", o.OrderID, sum, o.FilledQuantity)
			}
			if o.FilledQuantity > o.Quantity {
				t.Fatalf("order %s overfilled: %d > %d", o.OrderID, o.FilledQuantity, o.Quantity)
			}
			if o.FilledQuantity == o.Quantity && o.Quantity > 0 && o.Status != domain.OrderStatusFilled {
				t.Fatalf("order %s fully filled but status %s", o.OrderID, o.Status)
			}
		}

		// Trade quantities appear on both sides as fills.
		for _, tr := range f.trades.GetByInstrument("ACME") {
			buyFills := f.fills.GetByOrder(tr.BuyOrderID)
			sellFills := f.fills.GetByOrder(tr.SellOrderID)
			if !tradeCovered(tr, buyFills) || !tradeCovered(tr, sellFills) {
				t.Fatalf("trade %s missing a per-side fill", tr.TradeID)
			}
		}
	})
}

func tradeCovered(tr *domain.Trade, fills []*domain.Fill) bool {
	for _, fl := range fills {
		if fl.TradeID == tr.TradeID && fl.Quantity == tr.Quantity {
			return true
		}
	}
	return false
}

// Cash conservation: everything a real account pays or receives is
// accounted for by its fills' net amounts.
func TestPropertyCashMatchesFills(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newMatcherFixture(t)
		const opening = int64(1) << 40
		f.seedAccount(t, "alice", opening)
		f.matcher.SeedReference("ACME", 10000)

		numOrders := rapid.IntRange(1, 20).Draw(t, "numOrders")
		for i := 0; i < numOrders; i++ {
			side := domain.OrderSideBuy
			if rapid.Bool().Draw(t, fmt.Sprintf("sell-%d", i)) {
				side = domain.OrderSideSell
			}
			order := &domain.Order{
				UserID:      "alice",
				Instrument:  "ACME",
				Type:        domain.OrderTypeMarket,
				Side:        side,
				Quantity:    rapid.Int64Range(1, 500).Draw(t, fmt.Sprintf("qty-%d", i)),
				TimeInForce: domain.TimeInForceIOC,
			}
			if _, err := f.matcher.Submit(context.Background(), order); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}

		var delta int64
		orders, _ := f.orders.ListByUser("alice", nil, 1, 100)
		for _, o := range orders {
			for _, fl := range o.Fills {
				if o.Side == domain.OrderSideBuy {
					delta -= fl.Net
				} else {
					delta += fl.Net
				}
			}
		}

		account, _ := f.accounts.Get("alice")
		if account.CashBalance != opening+delta {
			t.Fatalf("cash %d != opening %d + fills delta %d", account.CashBalance, opening, delta)
		}
	})
}
