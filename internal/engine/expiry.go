package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantlab/papersim/internal/domain"
)

// ExpiryManager tracks resting day orders sorted by expires_at and
// periodically expires orders whose session has ended.
type ExpiryManager struct {
	interval     time.Duration
	matcher      *Matcher
	activeOrders []*domain.Order // sorted by expires_at ASC
	mu           sync.Mutex      // protects activeOrders slice
}

// NewExpiryManager creates a new ExpiryManager driven by the matcher.
func NewExpiryManager(interval time.Duration, matcher *Matcher) *ExpiryManager {
	return &ExpiryManager{
		interval:     interval,
		matcher:      matcher,
		activeOrders: make([]*domain.Order, 0),
	}
}

// Add inserts an order into the sorted activeOrders slice, maintaining
// expires_at ASC order. Only call this for day orders resting on the book.
func (e *ExpiryManager) Add(order *domain.Order) {
	if order.ExpiresAt == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	expiresAt := *order.ExpiresAt
	// Binary search for the insertion point.
	idx := sort.Search(len(e.activeOrders), func(i int) bool {
		return e.activeOrders[i].ExpiresAt.After(expiresAt)
	})
	// Insert at idx.
	e.activeOrders = append(e.activeOrders, nil)
	copy(e.activeOrders[idx+1:], e.activeOrders[idx:])
	e.activeOrders[idx] = order
}

// Remove deletes an order from the activeOrders slice by order ID.
func (e *ExpiryManager) Remove(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.activeOrders {
		if o.OrderID == orderID {
			e.activeOrders = append(e.activeOrders[:i], e.activeOrders[i+1:]...)
			return
		}
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.tick(ctx, t)
			}
		}
	}()
}

// tick iterates from the front of the sorted activeOrders slice and
// expires all orders where expires_at <= now.
func (e *ExpiryManager) tick(ctx context.Context, now time.Time) {
	// Collect orders to expire under the expiry manager lock.
	e.mu.Lock()
	var toExpire []*domain.Order
	cutoff := 0
	for cutoff < len(e.activeOrders) {
		o := e.activeOrders[cutoff]
		if o.ExpiresAt == nil || o.ExpiresAt.After(now) {
			break
		}
		toExpire = append(toExpire, o)
		cutoff++
	}
	// Remove expired orders from the front of the slice.
	if cutoff > 0 {
		e.activeOrders = e.activeOrders[cutoff:]
	}
	e.mu.Unlock()

	// The matcher re-checks status under the book lock; orders that
	// filled or cancelled since the last tick are skipped there.
	for _, order := range toExpire {
		e.matcher.Expire(ctx, order)
	}
}

// ActiveOrderCount returns the number of orders currently tracked for
// expiration. Useful for testing.
func (e *ExpiryManager) ActiveOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeOrders)
}
