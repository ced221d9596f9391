package service

import (
	"regexp"
	"time"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/store"
)

var (
	accountIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	instrumentRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)
)

// CreateAccountRequest represents the input for account creation.
type CreateAccountRequest struct {
	AccountID   string
	Name        string
	InitialCash float64
}

// PortfolioResponse represents an account's portfolio valued at current
// market prices.
type PortfolioResponse struct {
	AccountID     string
	CashBalance   int64
	Positions     []PositionView
	PositionValue int64
	TotalEquity   int64
	DayTradeCount int64
	AsOf          time.Time
}

// PositionView is one open position valued against the latest market
// snapshot.
type PositionView struct {
	Instrument    string
	Quantity      int64
	AvgCost       int64
	MarkPrice     int64
	MarketValue   int64
	UnrealizedPnL int64
	RealizedPnL   int64
	UpdatedAt     time.Time
}

// AccountService handles account creation and portfolio queries.
type AccountService struct {
	accounts  *store.AccountStore
	positions *store.PositionStore
	market    *engine.MarketData
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts *store.AccountStore, positions *store.PositionStore, market *engine.MarketData) *AccountService {
	return &AccountService{
		accounts:  accounts,
		positions: positions,
		market:    market,
	}
}

// Create validates the request and creates an account funded with the
// initial cash.
func (s *AccountService) Create(req CreateAccountRequest) (*domain.Account, error) {
	if !accountIDRegex.MatchString(req.AccountID) {
		return nil, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.Name == "" || len(req.Name) > 128 {
		return nil, &domain.ValidationError{
			Message: "name must be between 1 and 128 characters",
		}
	}
	if req.InitialCash < 0 {
		return nil, &domain.ValidationError{
			Message: "initial_cash must be >= 0",
		}
	}
	cashCents, err := domain.DollarsToCents(req.InitialCash)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "initial_cash must have at most 2 decimal places",
		}
	}

	account := domain.NewAccount(req.AccountID, req.Name, cashCents)
	if err := s.accounts.Create(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Get retrieves an account by ID.
func (s *AccountService) Get(accountID string) (*domain.Account, error) {
	return s.accounts.Get(accountID)
}

// GetPortfolio values the account's open positions against the latest
// market snapshots. Flat positions are omitted.
func (s *AccountService) GetPortfolio(accountID string) (*PortfolioResponse, error) {
	account, err := s.accounts.Get(accountID)
	if err != nil {
		return nil, err
	}

	account.Mu.Lock()
	cash := account.CashBalance
	dayTrades := account.DayTradeCount
	account.Mu.Unlock()

	var (
		views         []PositionView
		positionValue int64
	)
	for _, pos := range s.positions.ListByUser(accountID) {
		if pos.Quantity == 0 {
			continue
		}
		snap := s.market.GetSnapshot(pos.Instrument)
		mark := snap.Mid()
		if mark == 0 {
			mark = pos.AvgCost
		}
		value := pos.MarketValue(mark)
		positionValue += value
		views = append(views, PositionView{
			Instrument:    pos.Instrument,
			Quantity:      pos.Quantity,
			AvgCost:       pos.AvgCost,
			MarkPrice:     mark,
			MarketValue:   value,
			UnrealizedPnL: pos.UnrealizedPnL(mark),
			RealizedPnL:   pos.RealizedPnL,
			UpdatedAt:     pos.UpdatedAt,
		})
	}

	return &PortfolioResponse{
		AccountID:     accountID,
		CashBalance:   cash,
		Positions:     views,
		PositionValue: positionValue,
		TotalEquity:   cash + positionValue,
		DayTradeCount: dayTrades,
		AsOf:          time.Now(),
	}, nil
}
