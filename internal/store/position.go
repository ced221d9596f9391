package store

import (
	"sync"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// positionEntry pairs a position with its own mutex so that updates for
// one user+instrument key serialize against each other without blocking
// unrelated keys.
type positionEntry struct {
	mu  sync.Mutex
	pos *domain.Position
}

// PositionStore is a thread-safe in-memory store for positions, keyed
// by user_id + instrument. Weighted-average-cost and realized-P&L
// arithmetic require single-writer semantics per key; the store
// enforces that with a per-entry mutex.
type PositionStore struct {
	mu      sync.RWMutex
	entries map[string]*positionEntry // user_id + "/" + instrument
	byUser  map[string][]*positionEntry
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		entries: make(map[string]*positionEntry),
		byUser:  make(map[string][]*positionEntry),
	}
}

func positionKey(userID, instrument string) string {
	return userID + "/" + instrument
}

// getOrCreate returns the entry for the key, creating it if needed.
func (s *PositionStore) getOrCreate(userID, instrument string) *positionEntry {
	key := positionKey(userID, instrument)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &positionEntry{pos: &domain.Position{UserID: userID, Instrument: instrument}}
	s.entries[key] = e
	s.byUser[userID] = append(s.byUser[userID], e)
	return e
}

// Apply folds a fill into the user's position for the instrument and
// returns a copy of the updated position. Updates for the same key are
// serialized by the entry mutex.
func (s *PositionStore) Apply(userID, instrument string, side domain.OrderSide, qty, price int64, at time.Time) domain.Position {
	e := s.getOrCreate(userID, instrument)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.Apply(side, qty, price, at)
	return *e.pos
}

// Get returns a copy of the user's position in the instrument. It
// returns domain.ErrPositionNotFound if no fills have touched the key.
func (s *PositionStore) Get(userID, instrument string) (domain.Position, error) {
	s.mu.RLock()
	e, ok := s.entries[positionKey(userID, instrument)]
	s.mu.RUnlock()
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.pos, nil
}

// ListByUser returns copies of all of the user's positions, including
// flat ones.
func (s *PositionStore) ListByUser(userID string) []domain.Position {
	s.mu.RLock()
	entries := make([]*positionEntry, len(s.byUser[userID]))
	copy(entries, s.byUser[userID])
	s.mu.RUnlock()

	out := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, *e.pos)
		e.mu.Unlock()
	}
	return out
}
