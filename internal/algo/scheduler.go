package algo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/store"
)

// A parent order fails after this many consecutive step failures.
const maxConsecutiveFailures = 3

// MarketData serves market snapshots for step gating and pricing.
type MarketData interface {
	GetSnapshot(instrument string) domain.MarketSnapshot
}

// AdmissionGate validates an algorithmic order before it may start.
type AdmissionGate interface {
	ValidateAlgorithmic(a *domain.AlgorithmicOrder) domain.RiskDecision
}

// OrderSubmitter routes child orders into the matching engine.
type OrderSubmitter interface {
	Submit(ctx context.Context, o *domain.Order) (*engine.SubmitResult, error)
	Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error)
}

// Scheduler owns the AlgorithmicOrder lifecycle: admission, schedule
// generation, timer-driven step execution, pause/resume, and
// cancellation. One logical worker per order, implemented as clock
// callbacks rather than dedicated goroutines, so thousands of
// concurrent orders are cheap. Steps for one order execute strictly in
// index order, serialized by a per-order mutex.
type Scheduler struct {
	algos     *store.AlgoStore
	orders    *store.OrderStore
	gate      AdmissionGate
	market    MarketData
	submitter OrderSubmitter
	clock     Clock
	events    engine.EventPublisher
	rng       *lockedRand
	tick      time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // algo_order_id → step serialization
}

// NewScheduler creates a Scheduler. tick is the re-check interval for
// gated and volume-driven strategies and the retry delay for failed
// steps. seed feeds the jitter source; fix it in tests for determinism.
func NewScheduler(
	algos *store.AlgoStore,
	orders *store.OrderStore,
	gate AdmissionGate,
	market MarketData,
	submitter OrderSubmitter,
	clock Clock,
	events engine.EventPublisher,
	tick time.Duration,
	seed int64,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		algos:     algos,
		orders:    orders,
		gate:      gate,
		market:    market,
		submitter: submitter,
		clock:     clock,
		events:    events,
		rng:       newLockedRand(seed),
		tick:      tick,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Scheduler) lockFor(algoID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[algoID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[algoID] = l
	}
	return l
}

// Start validates an algorithmic order, generates its execution
// schedule, and arms the first step. The caller provides UserID,
// Instrument, Side, Algorithm, TotalQuantity, the time window, and
// Params. Risk rejection is not an error: the order transitions to
// rejected and carries the violation list.
func (s *Scheduler) Start(ctx context.Context, a *domain.AlgorithmicOrder) (*domain.AlgorithmicOrder, error) {
	if a.TotalQuantity <= 0 {
		return nil, &domain.ValidationError{Message: "total quantity must be positive"}
	}
	now := s.clock.Now()
	if a.StartTime.IsZero() {
		a.StartTime = now
	}
	if a.EndTime.IsZero() {
		a.EndTime = a.StartTime.Add(time.Hour)
	}
	if a.EndTime.Sub(a.StartTime) < time.Minute {
		return nil, &domain.ValidationError{Message: "execution window must be at least 1 minute"}
	}

	strategy, err := strategyFor(a, s.rng, s.tick)
	if err != nil {
		return nil, err
	}

	a.AlgoOrderID = uuid.New().String()
	a.CreatedAt = now
	a.Status = domain.AlgoStatusPending
	s.algos.Create(a)

	decision := s.gate.ValidateAlgorithmic(a)
	if !decision.Approved {
		a.Status = domain.AlgoStatusRejected
		a.RejectReasons = decision.Violations
		s.logger.Info("algorithmic order rejected",
			slog.String("algo_order_id", a.AlgoOrderID),
			slog.String("reason", strings.Join(decision.Violations, "; ")),
		)
		s.publish(ctx, domain.EventRiskAlert, domain.PriorityCritical, decision, a)
		return a, nil
	}

	steps, err := strategy.GenerateSchedule(a)
	if err != nil {
		return nil, err
	}
	execs := make([]*domain.AlgorithmicExecution, len(steps))
	for i, step := range steps {
		execs[i] = &domain.AlgorithmicExecution{
			ExecutionID:    uuid.New().String(),
			AlgoOrderID:    a.AlgoOrderID,
			StepIndex:      step.Index,
			ScheduledAt:    step.At,
			TargetQuantity: step.Quantity,
			Status:         domain.ExecStatusPending,
		}
	}
	s.algos.CreateExecutions(a.AlgoOrderID, execs)

	a.Status = domain.AlgoStatusRunning
	started := now
	a.StartedAt = &started

	s.logger.Info("algorithm started",
		slog.String("algo_order_id", a.AlgoOrderID),
		slog.String("algorithm", string(a.Algorithm)),
		slog.Int("steps", len(execs)),
	)
	s.publish(ctx, domain.EventAlgorithmStarted, domain.PriorityNormal, a, a)

	s.scheduleStep(a.AlgoOrderID, 0, execs[0].ScheduledAt)
	return a, nil
}

func (s *Scheduler) scheduleStep(algoID string, stepIndex int, at time.Time) {
	s.clock.ScheduleAt(at, func() {
		s.ProcessStep(context.Background(), algoID, stepIndex)
	})
}

// ProcessStep executes one scheduled step: fetch a market snapshot,
// evaluate the strategy gate, build and submit a child order, record
// the outcome, and arm the next step. A gated tick is retried, not
// failed. The order's status is checked first so pause and cancel take
// effect between steps.
func (s *Scheduler) ProcessStep(ctx context.Context, algoID string, stepIndex int) {
	lock := s.lockFor(algoID)
	lock.Lock()
	defer lock.Unlock()

	a, err := s.algos.Get(algoID)
	if err != nil {
		return
	}
	if a.Status != domain.AlgoStatusRunning {
		// Paused orders are re-armed by Resume; terminal orders are done.
		return
	}

	execs := s.algos.Executions(algoID)
	if stepIndex >= len(execs) {
		return
	}
	exec := execs[stepIndex]
	if exec.Status != domain.ExecStatusPending {
		return
	}

	strategy, err := strategyFor(a, s.rng, s.tick)
	if err != nil {
		s.fail(ctx, a, err.Error())
		return
	}

	now := s.clock.Now()
	if now.After(a.EndTime) && a.RemainingQuantity() > 0 {
		exec.Status = domain.ExecStatusSkipped
		exec.Error = "execution window elapsed"
		s.fail(ctx, a, "execution window elapsed")
		return
	}

	snap := s.market.GetSnapshot(a.Instrument)

	if ok, reason := strategy.ShouldExecute(a, snap, now); !ok {
		// Skip this tick and retry later; not a failure.
		s.logger.Debug("step gated",
			slog.String("algo_order_id", algoID),
			slog.Int("step", stepIndex),
			slog.String("reason", reason),
		)
		s.scheduleStep(algoID, stepIndex, now.Add(s.tick))
		return
	}

	qty := strategy.StepQuantity(a, exec.TargetQuantity, snap)
	if qty > a.RemainingQuantity() {
		qty = a.RemainingQuantity()
	}
	if qty <= 0 {
		// Nothing executable this tick (e.g. no observed volume yet).
		exec.Status = domain.ExecStatusSkipped
		exec.Snapshot = snap
		s.advance(ctx, a, strategy, stepIndex, now)
		return
	}

	orderType, limit := strategy.Price(a, snap)
	child := &domain.Order{
		UserID:       a.UserID,
		Instrument:   a.Instrument,
		Type:         orderType,
		Side:         a.Side,
		Quantity:     qty,
		LimitPrice:   limit,
		TimeInForce:  domain.TimeInForceIOC,
		ParentAlgoID: a.AlgoOrderID,
	}

	res, err := s.submitter.Submit(ctx, child)
	exec.Snapshot = snap
	executedAt := now
	exec.ExecutedAt = &executedAt

	if err != nil || !res.Accepted {
		reason := "matching failure"
		if err != nil {
			reason = err.Error()
		} else if len(res.Violations) > 0 {
			reason = strings.Join(res.Violations, "; ")
		}
		s.recordStepFailure(ctx, a, exec, reason, now)
		return
	}

	exec.Status = domain.ExecStatusExecuted
	exec.ChildOrderID = child.OrderID
	exec.ExecutedQty = child.FilledQuantity
	a.ConsecutiveStepFailures = 0

	if child.FilledQuantity > 0 {
		s.recordProgress(a, child)
	}
	s.publish(ctx, domain.EventAlgorithmStep, domain.PriorityNormal, exec, a)

	if a.ExecutedQuantity >= a.TotalQuantity {
		s.complete(ctx, a, now)
		return
	}
	s.advance(ctx, a, strategy, stepIndex, now)
}

// recordStepFailure marks the step failed and either fails the parent
// (after three consecutive failures) or appends a retry step one tick
// later with the same target.
func (s *Scheduler) recordStepFailure(ctx context.Context, a *domain.AlgorithmicOrder, exec *domain.AlgorithmicExecution, reason string, now time.Time) {
	exec.Status = domain.ExecStatusFailed
	exec.Error = reason
	a.ConsecutiveStepFailures++

	s.logger.Warn("algorithm step failed",
		slog.String("algo_order_id", a.AlgoOrderID),
		slog.Int("step", exec.StepIndex),
		slog.String("reason", reason),
		slog.Int("consecutive", a.ConsecutiveStepFailures),
	)

	if a.ConsecutiveStepFailures >= maxConsecutiveFailures {
		s.fail(ctx, a, "three consecutive step failures")
		return
	}
	s.appendStep(a, exec.TargetQuantity, now.Add(s.tick))
}

// advance arms the next step. Tick-driven strategies generate their
// next step now; static strategies move to the next pending scheduled
// step, or append a catch-up step when the schedule is exhausted with
// quantity remaining (partial child fills leave a shortfall).
func (s *Scheduler) advance(ctx context.Context, a *domain.AlgorithmicOrder, strategy Strategy, stepIndex int, now time.Time) {
	if strategy.TickDriven() {
		s.appendStep(a, a.RemainingQuantity(), now.Add(s.tick))
		return
	}

	execs := s.algos.Executions(a.AlgoOrderID)
	for _, e := range execs {
		if e.StepIndex > stepIndex && e.Status == domain.ExecStatusPending {
			at := e.ScheduledAt
			if at.Before(now) {
				at = now
			}
			s.scheduleStep(a.AlgoOrderID, e.StepIndex, at)
			return
		}
	}
	if a.RemainingQuantity() > 0 {
		s.appendStep(a, a.RemainingQuantity(), now.Add(s.tick))
	}
}

// appendStep creates and arms a new pending execution after the
// current schedule.
func (s *Scheduler) appendStep(a *domain.AlgorithmicOrder, target int64, at time.Time) {
	execs := s.algos.Executions(a.AlgoOrderID)
	next := &domain.AlgorithmicExecution{
		ExecutionID:    uuid.New().String(),
		AlgoOrderID:    a.AlgoOrderID,
		StepIndex:      len(execs),
		ScheduledAt:    at,
		TargetQuantity: target,
		Status:         domain.ExecStatusPending,
	}
	s.algos.CreateExecutions(a.AlgoOrderID, []*domain.AlgorithmicExecution{next})
	s.scheduleStep(a.AlgoOrderID, next.StepIndex, at)
}

// recordProgress folds a filled child order into the parent's
// execution-quality metrics: executed quantity, running
// volume-weighted average price, and slippage in basis points against
// the benchmark (the limit price, or the first execution price).
// Positive slippage is adverse.
func (s *Scheduler) recordProgress(a *domain.AlgorithmicOrder, child *domain.Order) {
	filled := child.FilledQuantity
	prevNotional := a.AvgExecPrice * a.ExecutedQuantity
	a.ExecutedQuantity += filled
	a.AvgExecPrice = (prevNotional + child.AvgFillPrice*filled) / a.ExecutedQuantity

	if a.BenchmarkPrice == 0 {
		if a.LimitPrice > 0 {
			a.BenchmarkPrice = a.LimitPrice
		} else {
			a.BenchmarkPrice = child.AvgFillPrice
		}
	}
	dev := domain.BpsBetween(child.AvgFillPrice, a.BenchmarkPrice)
	if a.Side == domain.OrderSideSell {
		dev = -dev
	}
	a.TotalSlippageBps += dev
}

// complete transitions the order to completed and computes
// implementation shortfall: (avg − benchmark) / benchmark, sign-flipped
// for sells so positive is always adverse.
func (s *Scheduler) complete(ctx context.Context, a *domain.AlgorithmicOrder, now time.Time) {
	if err := a.SetStatus(domain.AlgoStatusCompleted); err != nil {
		return
	}
	a.CompletedAt = &now

	benchmark := a.LimitPrice
	if benchmark == 0 {
		benchmark = a.BenchmarkPrice
	}
	if benchmark > 0 {
		shortfall := float64(a.AvgExecPrice-benchmark) / float64(benchmark)
		if a.Side == domain.OrderSideSell {
			shortfall = -shortfall
		}
		a.ImplementationShortfall = shortfall
	}

	s.logger.Info("algorithm completed",
		slog.String("algo_order_id", a.AlgoOrderID),
		slog.Int64("executed", a.ExecutedQuantity),
		slog.Int64("avg_price", a.AvgExecPrice),
	)
	s.publish(ctx, domain.EventAlgorithmCompleted, domain.PriorityHigh, a, a)
}

func (s *Scheduler) fail(ctx context.Context, a *domain.AlgorithmicOrder, reason string) {
	if err := a.SetStatus(domain.AlgoStatusFailed); err != nil {
		return
	}
	now := s.clock.Now()
	a.CompletedAt = &now
	a.RejectReasons = append(a.RejectReasons, reason)

	s.logger.Warn("algorithm failed",
		slog.String("algo_order_id", a.AlgoOrderID),
		slog.String("reason", reason),
	)
	s.publish(ctx, domain.EventAlgorithmFailed, domain.PriorityHigh, a, a)
}

// Pause suspends step execution. Legal only from running.
func (s *Scheduler) Pause(ctx context.Context, algoID string) (*domain.AlgorithmicOrder, error) {
	lock := s.lockFor(algoID)
	lock.Lock()
	defer lock.Unlock()

	a, err := s.algos.Get(algoID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AlgoStatusRunning {
		return nil, domain.ErrInvalidStateTransition
	}
	a.Status = domain.AlgoStatusPaused
	return a, nil
}

// Resume restarts a paused order and re-arms its next pending step.
// Legal only from paused.
func (s *Scheduler) Resume(ctx context.Context, algoID string) (*domain.AlgorithmicOrder, error) {
	lock := s.lockFor(algoID)
	lock.Lock()
	defer lock.Unlock()

	a, err := s.algos.Get(algoID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AlgoStatusPaused {
		return nil, domain.ErrInvalidStateTransition
	}
	a.Status = domain.AlgoStatusRunning

	now := s.clock.Now()
	for _, e := range s.algos.Executions(algoID) {
		if e.Status == domain.ExecStatusPending {
			at := e.ScheduledAt
			if at.Before(now) {
				at = now
			}
			s.scheduleStep(algoID, e.StepIndex, at)
			break
		}
	}
	return a, nil
}

// Cancel cancels an algorithmic order: all unfilled child orders are
// cancelled first, then the order transitions to cancelled. No new
// steps begin afterwards; ProcessStep checks status before acting.
// Legal from running and paused.
func (s *Scheduler) Cancel(ctx context.Context, algoID string) (*domain.AlgorithmicOrder, error) {
	lock := s.lockFor(algoID)
	lock.Lock()
	defer lock.Unlock()

	a, err := s.algos.Get(algoID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AlgoStatusRunning && a.Status != domain.AlgoStatusPaused {
		return nil, domain.ErrInvalidStateTransition
	}

	for _, child := range s.orders.ListByParent(algoID) {
		if child.IsActive() {
			if _, err := s.submitter.Cancel(ctx, child.OrderID, "parent algorithm cancelled"); err != nil {
				s.logger.Warn("child order cancel failed",
					slog.String("algo_order_id", algoID),
					slog.String("order_id", child.OrderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	a.Status = domain.AlgoStatusCancelled
	now := s.clock.Now()
	a.CompletedAt = &now
	s.publish(ctx, domain.EventAlgorithmCancelled, domain.PriorityNormal, a, a)
	return a, nil
}

func (s *Scheduler) publish(ctx context.Context, typ domain.EventType, pri domain.EventPriority, payload any, a *domain.AlgorithmicOrder) {
	s.events.Publish(ctx, &domain.Event{
		EventID:    uuid.New().String(),
		Type:       typ,
		Priority:   pri,
		Instrument: a.Instrument,
		UserID:     a.UserID,
		Payload:    payload,
		OccurredAt: s.clock.Now(),
	})
}
