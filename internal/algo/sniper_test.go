package algo

import (
	"testing"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

func sniperFixture() (*sniperStrategy, *domain.AlgorithmicOrder) {
	s := &sniperStrategy{
		patience:  5 * time.Minute,
		maxSpread: 20,
		minVolume: 1000,
		tick:      time.Second,
	}
	a := twapOrder(500, 0, time.Hour)
	a.Algorithm = domain.AlgorithmSniper
	return s, a
}

func TestSniperGate(t *testing.T) {
	s, a := sniperFixture()
	a.LimitPrice = 10000
	now := a.StartTime.Add(time.Minute)

	good := domain.MarketSnapshot{
		LastPrice: 9995,
		Bid:       9990,
		Ask:       10000,
		Volume:    5000,
		SpreadBps: 10,
	}

	tests := []struct {
		name   string
		mutate func(*domain.MarketSnapshot)
		want   bool
	}{
		{"conditions met", func(*domain.MarketSnapshot) {}, true},
		{"spread too wide", func(s *domain.MarketSnapshot) { s.SpreadBps = 40 }, false},
		{"no spread yet", func(s *domain.MarketSnapshot) { s.SpreadBps = 0 }, false},
		{"volume too thin", func(s *domain.MarketSnapshot) { s.Volume = 200 }, false},
		{"ask above limit", func(s *domain.MarketSnapshot) { s.Ask = 10050 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := good
			tt.mutate(&snap)
			got, reason := s.ShouldExecute(a, snap, now)
			if got != tt.want {
				t.Errorf("ShouldExecute = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}

func TestSniperGateSellSide(t *testing.T) {
	s, a := sniperFixture()
	a.Side = domain.OrderSideSell
	a.LimitPrice = 10000
	now := a.StartTime.Add(time.Minute)

	snap := domain.MarketSnapshot{Bid: 9990, Ask: 10010, Volume: 5000, SpreadBps: 10}
	if ok, _ := s.ShouldExecute(a, snap, now); ok {
		t.Error("bid below sell limit should not execute")
	}

	snap.Bid = 10000
	if ok, _ := s.ShouldExecute(a, snap, now); !ok {
		t.Error("bid at sell limit should execute")
	}
}

// The patience timeout overrides every market condition.
func TestSniperPatienceTimeout(t *testing.T) {
	s, a := sniperFixture()
	a.LimitPrice = 10000

	bad := domain.MarketSnapshot{Ask: 10500, Volume: 0, SpreadBps: 90}

	if ok, _ := s.ShouldExecute(a, bad, a.StartTime.Add(4*time.Minute)); ok {
		t.Error("unfavorable market should not execute before timeout")
	}

	ok, reason := s.ShouldExecute(a, bad, a.StartTime.Add(6*time.Minute))
	if !ok {
		t.Fatal("timeout should force execution")
	}
	if reason != "patience timeout" {
		t.Errorf("reason = %q", reason)
	}
}

func TestSniperExecution(t *testing.T) {
	s, a := sniperFixture()
	a.ExecutedQuantity = 100

	if got := s.StepQuantity(a, 500, domain.MarketSnapshot{}); got != 400 {
		t.Errorf("StepQuantity = %d, want full remainder 400", got)
	}

	typ, limit := s.Price(a, domain.MarketSnapshot{})
	if typ != domain.OrderTypeMarket || limit != 0 {
		t.Errorf("unbounded sniper: got %s/%d, want market/0", typ, limit)
	}

	a.LimitPrice = 10000
	typ, limit = s.Price(a, domain.MarketSnapshot{})
	if typ != domain.OrderTypeLimit || limit != 10000 {
		t.Errorf("bounded sniper: got %s/%d, want limit/10000", typ, limit)
	}

	if !s.TickDriven() {
		t.Error("sniper must be tick driven")
	}
}
