package store

import (
	"sort"
	"sync"

	"github.com/quantlab/papersim/internal/domain"
)

// AlgoStore is a thread-safe in-memory store for algorithmic orders and
// their executions.
type AlgoStore struct {
	mu         sync.RWMutex
	orders     map[string]*domain.AlgorithmicOrder
	userOrders map[string][]*domain.AlgorithmicOrder
	executions map[string][]*domain.AlgorithmicExecution // algo_order_id → steps
}

// NewAlgoStore creates an empty AlgoStore.
func NewAlgoStore() *AlgoStore {
	return &AlgoStore{
		orders:     make(map[string]*domain.AlgorithmicOrder),
		userOrders: make(map[string][]*domain.AlgorithmicOrder),
		executions: make(map[string][]*domain.AlgorithmicExecution),
	}
}

// Create adds an algorithmic order to the store.
func (s *AlgoStore) Create(a *domain.AlgorithmicOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[a.AlgoOrderID] = a
	s.userOrders[a.UserID] = append(s.userOrders[a.UserID], a)
}

// Get retrieves an algorithmic order by ID. It returns
// domain.ErrAlgoOrderNotFound if the order does not exist.
func (s *AlgoStore) Get(id string) (*domain.AlgorithmicOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrAlgoOrderNotFound
	}
	return a, nil
}

// ListByUser returns the user's algorithmic orders in creation order.
func (s *AlgoStore) ListByUser(userID string) []*domain.AlgorithmicOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := s.userOrders[userID]
	out := make([]*domain.AlgorithmicOrder, len(orders))
	copy(out, orders)
	return out
}

// CreateExecutions records the scheduled steps of an algorithmic order.
func (s *AlgoStore) CreateExecutions(algoOrderID string, execs []*domain.AlgorithmicExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[algoOrderID] = append(s.executions[algoOrderID], execs...)
}

// Executions returns the steps of an algorithmic order sorted by step
// index.
func (s *AlgoStore) Executions(algoOrderID string) []*domain.AlgorithmicExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execs := s.executions[algoOrderID]
	out := make([]*domain.AlgorithmicExecution, len(execs))
	copy(out, execs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].StepIndex < out[j].StepIndex
	})
	return out
}
