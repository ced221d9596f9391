package store

import (
	"testing"

	"github.com/quantlab/papersim/internal/domain"
)

func TestAccountStoreCreateAndGet(t *testing.T) {
	s := NewAccountStore()
	a := domain.NewAccount("alice", "Alice", 100000)
	if err := s.Create(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CashBalance != 100000 {
		t.Errorf("expected cash 100000, got %d", got.CashBalance)
	}
	if !s.Exists("alice") {
		t.Error("expected Exists true")
	}
}

func TestAccountStoreDuplicateID(t *testing.T) {
	s := NewAccountStore()
	if err := s.Create(domain.NewAccount("alice", "Alice", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Create(domain.NewAccount("alice", "Other Alice", 0)); err != domain.ErrAccountAlreadyExists {
		t.Errorf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestAccountStoreGetUnknown(t *testing.T) {
	s := NewAccountStore()
	if _, err := s.Get("nobody"); err != domain.ErrAccountNotFound {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if s.Exists("nobody") {
		t.Error("expected Exists false")
	}
}
