package store

import (
	"fmt"
	"testing"

	"github.com/quantlab/papersim/internal/domain"
)

func seedOrders(s *OrderStore, userID string, n int) []*domain.Order {
	out := make([]*domain.Order, n)
	for i := 0; i < n; i++ {
		o := &domain.Order{
			OrderID:    fmt.Sprintf("%s-order-%d", userID, i),
			UserID:     userID,
			Instrument: "ACME",
			Status:     domain.OrderStatusAcknowledged,
		}
		s.Create(o)
		out[i] = o
	}
	return out
}

func TestOrderStoreCreateAndGet(t *testing.T) {
	s := NewOrderStore()
	o := &domain.Order{OrderID: "o1", UserID: "alice"}
	s.Create(o)

	got, err := s.Get("o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != o {
		t.Error("expected the same order back")
	}

	if _, err := s.Get("missing"); err != domain.ErrOrderNotFound {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStoreListByUserNewestFirst(t *testing.T) {
	s := NewOrderStore()
	orders := seedOrders(s, "alice", 3)

	got, total := s.ListByUser("alice", nil, 1, 10)
	if total != 3 || len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d (total %d)", len(got), total)
	}
	if got[0] != orders[2] || got[2] != orders[0] {
		t.Error("expected newest-first ordering")
	}
}

func TestOrderStoreListByUserStatusFilter(t *testing.T) {
	s := NewOrderStore()
	orders := seedOrders(s, "alice", 4)
	orders[1].Status = domain.OrderStatusFilled
	orders[3].Status = domain.OrderStatusFilled

	filled := domain.OrderStatusFilled
	got, total := s.ListByUser("alice", &filled, 1, 10)
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected 2 filled orders, got %d (total %d)", len(got), total)
	}
	for _, o := range got {
		if o.Status != domain.OrderStatusFilled {
			t.Errorf("expected filled, got %s", o.Status)
		}
	}
}

func TestOrderStoreListByUserPagination(t *testing.T) {
	s := NewOrderStore()
	seedOrders(s, "alice", 5)

	page1, total := s.ListByUser("alice", nil, 1, 2)
	page2, _ := s.ListByUser("alice", nil, 2, 2)
	page3, _ := s.ListByUser("alice", nil, 3, 2)
	beyond, _ := s.ListByUser("alice", nil, 4, 2)

	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page1) != 2 || len(page2) != 2 || len(page3) != 1 || len(beyond) != 0 {
		t.Errorf("expected page sizes 2/2/1/0, got %d/%d/%d/%d",
			len(page1), len(page2), len(page3), len(beyond))
	}
	if page1[0].OrderID != "alice-order-4" || page3[0].OrderID != "alice-order-0" {
		t.Error("pages must continue the newest-first ordering")
	}
}

func TestOrderStoreListByParent(t *testing.T) {
	s := NewOrderStore()
	for i := 0; i < 3; i++ {
		s.Create(&domain.Order{
			OrderID:      fmt.Sprintf("child-%d", i),
			UserID:       "alice",
			ParentAlgoID: "algo-1",
		})
	}
	s.Create(&domain.Order{OrderID: "plain", UserID: "alice"})

	children := s.ListByParent("algo-1")
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}
	if children[0].OrderID != "child-0" {
		t.Error("expected creation order")
	}
	if len(s.ListByParent("unknown")) != 0 {
		t.Error("expected no children for unknown parent")
	}
}
