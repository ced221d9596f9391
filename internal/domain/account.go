package domain

import (
	"sync"
	"time"
)

// Account holds a user's simulated cash and trading-activity counters.
// Cash is debited and credited as fills settle; admission checks read
// CashBalance through the risk gate before an order may trade.
//
// Mu guards all mutable fields. Callers lock it around any
// read-modify-write sequence.
type Account struct {
	AccountID   string
	Name        string
	CashBalance int64 // cents
	CreatedAt   time.Time

	// DayTradeCount counts round trips in the current session under
	// the venue's simplified heuristic (any sell counts).
	DayTradeCount int64

	// LossSales records, per instrument, the time of the most recent
	// sell that realized a loss. Feeds the wash-sale compliance rule.
	LossSales map[string]time.Time

	Mu sync.Mutex
}

// NewAccount creates an account with the given opening cash balance.
func NewAccount(id, name string, cash int64) *Account {
	return &Account{
		AccountID:   id,
		Name:        name,
		CashBalance: cash,
		CreatedAt:   time.Now(),
		LossSales:   make(map[string]time.Time),
	}
}
