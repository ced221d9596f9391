package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantlab/papersim/internal/algo"
	"github.com/quantlab/papersim/internal/bus"
	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/risk"
	"github.com/quantlab/papersim/internal/store"
)

// fixture wires the full stack behind the services, with a manual
// clock driving the algorithmic scheduler.
type fixture struct {
	accounts    *store.AccountStore
	orders      *store.OrderStore
	trades      *store.TradeStore
	fills       *store.FillStore
	positions   *store.PositionStore
	algos       *store.AlgoStore
	instruments *domain.InstrumentRegistry
	books       *engine.BookManager
	market      *engine.MarketData
	matcher     *engine.Matcher
	clock       *algo.ManualClock

	accountSvc *AccountService
	orderSvc   *OrderService
	algoSvc    *AlgoService
	marketSvc  *MarketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		accounts:    store.NewAccountStore(),
		orders:      store.NewOrderStore(),
		trades:      store.NewTradeStore(),
		fills:       store.NewFillStore(),
		positions:   store.NewPositionStore(),
		algos:       store.NewAlgoStore(),
		instruments: domain.NewInstrumentRegistry(),
		books:       engine.NewBookManager(),
	}
	f.market = engine.NewMarketData(f.books)

	eventBus := bus.New(1000, logger)
	gate := risk.NewGate(risk.DefaultLimits(), risk.DefaultRules(),
		f.accounts, f.positions, f.instruments, f.market, logger)
	mm := engine.NewMarketMaker(engine.QuoteModeBasic, 10, 1.0, 1000, logger)
	f.matcher = engine.NewMatcher(f.books, mm, gate, f.accounts, f.orders,
		f.trades, f.fills, f.positions, eventBus, 10, logger)
	expiry := engine.NewExpiryManager(time.Second, f.matcher)

	f.clock = algo.NewManualClock(time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC))
	scheduler := algo.NewScheduler(f.algos, f.orders, gate, f.market, f.matcher,
		f.clock, eventBus, time.Second, 1, logger)

	f.accountSvc = NewAccountService(f.accounts, f.positions, f.market)
	f.orderSvc = NewOrderService(f.matcher, expiry, f.accounts, f.orders, f.fills, f.instruments)
	f.algoSvc = NewAlgoService(scheduler, f.algos, f.orders, f.accounts, f.instruments)
	f.marketSvc = NewMarketService(f.books, f.market, f.matcher, f.trades, f.instruments)

	return f
}

// setup registers the ACME instrument at a $100.00 reference and funds
// an account.
func (f *fixture) setup(t *testing.T, accountID string, cashDollars float64) {
	t.Helper()
	if _, err := f.accountSvc.Create(CreateAccountRequest{
		AccountID:   accountID,
		Name:        accountID,
		InitialCash: cashDollars,
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !f.instruments.Exists("ACME") {
		if _, err := f.marketSvc.RegisterInstrument(RegisterInstrumentRequest{
			Symbol:         "ACME",
			Name:           "Acme Corp",
			ReferencePrice: 100.00,
		}); err != nil {
			t.Fatalf("register instrument: %v", err)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }

func isValidationError(err error) bool {
	_, ok := err.(*domain.ValidationError)
	return ok
}
