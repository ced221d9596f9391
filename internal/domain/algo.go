package domain

import "time"

// AlgorithmType identifies the execution strategy of an algorithmic order.
type AlgorithmType string

const (
	AlgorithmTWAP    AlgorithmType = "twap"
	AlgorithmVWAP    AlgorithmType = "vwap"
	AlgorithmIceberg AlgorithmType = "iceberg"
	AlgorithmSniper  AlgorithmType = "sniper"
	AlgorithmPOV     AlgorithmType = "participation_rate"
)

// AlgoStatus represents the lifecycle state of an algorithmic order.
type AlgoStatus string

const (
	AlgoStatusPending   AlgoStatus = "pending"
	AlgoStatusRejected  AlgoStatus = "rejected"
	AlgoStatusRunning   AlgoStatus = "running"
	AlgoStatusPaused    AlgoStatus = "paused"
	AlgoStatusCompleted AlgoStatus = "completed"
	AlgoStatusCancelled AlgoStatus = "cancelled"
	AlgoStatusFailed    AlgoStatus = "failed"
)

// algoTransitions maps each status to the set of statuses it may move to.
// Rejected is reachable only from pending; completed, cancelled, failed,
// and rejected are terminal.
var algoTransitions = map[AlgoStatus][]AlgoStatus{
	AlgoStatusPending: {AlgoStatusRunning, AlgoStatusRejected},
	AlgoStatusRunning: {AlgoStatusPaused, AlgoStatusCompleted, AlgoStatusCancelled, AlgoStatusFailed},
	AlgoStatusPaused:  {AlgoStatusRunning, AlgoStatusCancelled, AlgoStatusFailed},
}

// CanTransitionAlgo reports whether an algorithmic order in status from
// may move to status to.
func CanTransitionAlgo(from, to AlgoStatus) bool {
	for _, s := range algoTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s AlgoStatus) IsTerminal() bool {
	return len(algoTransitions[s]) == 0
}

// VolumeProfile names an intraday volume shape used by VWAP scheduling.
type VolumeProfile string

const (
	ProfileStandard   VolumeProfile = "standard"
	ProfileAggressive VolumeProfile = "aggressive"
	ProfilePassive    VolumeProfile = "passive"
)

// AlgoParams carries strategy-specific tuning. Only the fields for the
// order's AlgorithmType are consulted; the rest are ignored.
type AlgoParams struct {
	// TWAP
	SliceCount          int
	TimingJitter        bool
	PriceImprovementBps int64

	// VWAP
	Profile VolumeProfile

	// Iceberg
	DisplaySize int64
	SizeJitter  bool

	// Sniper
	MaxSpreadBps    int64
	MinVolume       int64
	PatienceSeconds int64

	// Participation rate
	ParticipationRate float64

	// Re-check interval for gated or volume-driven strategies.
	TickInterval time.Duration
}

// AlgorithmicOrder is a parent order that the scheduler decomposes into
// child orders over a time window.
type AlgorithmicOrder struct {
	AlgoOrderID      string
	UserID           string
	Instrument       string
	Side             OrderSide
	Algorithm        AlgorithmType
	TotalQuantity    int64
	ExecutedQuantity int64
	StartTime        time.Time
	EndTime          time.Time
	Params           AlgoParams
	LimitPrice       int64 // cents, 0 when unset
	Status           AlgoStatus
	RejectReasons    []string

	// Execution quality, updated as child orders fill.
	AvgExecPrice            int64   // cents, volume-weighted across fills
	TotalSlippageBps        int64   // accumulated per-step deviation from benchmark
	ImplementationShortfall float64 // fraction, signed by side, set on completion
	BenchmarkPrice          int64   // limit price, or first execution price
	ConsecutiveStepFailures int

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RemainingQuantity returns the quantity not yet executed by child orders.
func (a *AlgorithmicOrder) RemainingQuantity() int64 {
	return a.TotalQuantity - a.ExecutedQuantity
}

// FillRatio returns executed quantity as a fraction of total quantity.
func (a *AlgorithmicOrder) FillRatio() float64 {
	if a.TotalQuantity == 0 {
		return 0
	}
	return float64(a.ExecutedQuantity) / float64(a.TotalQuantity)
}

// SetStatus transitions the order to the given status. Returns
// ErrInvalidStateTransition when the move is not legal; the order is
// left unchanged on rejection.
func (a *AlgorithmicOrder) SetStatus(to AlgoStatus) error {
	if !CanTransitionAlgo(a.Status, to) {
		return ErrInvalidStateTransition
	}
	a.Status = to
	return nil
}

// ExecStatus represents the state of one scheduled algorithm step.
type ExecStatus string

const (
	ExecStatusPending  ExecStatus = "pending"
	ExecStatusExecuted ExecStatus = "executed"
	ExecStatusSkipped  ExecStatus = "skipped"
	ExecStatusFailed   ExecStatus = "failed"
)

// AlgorithmicExecution is one scheduled step of an algorithmic order.
// Immutable once the step completes.
type AlgorithmicExecution struct {
	ExecutionID    string
	AlgoOrderID    string
	StepIndex      int
	ScheduledAt    time.Time
	TargetQuantity int64
	ExecutedQty    int64
	ChildOrderID   string
	Status         ExecStatus
	Error          string
	Snapshot       MarketSnapshot // market state at execution time
	ExecutedAt     *time.Time
}

// MarketSnapshot is a point-in-time view of an instrument's market,
// as served by the market data port. Values may be stale.
type MarketSnapshot struct {
	Instrument string
	LastPrice  int64 // cents
	Bid        int64 // cents, 0 when absent
	Ask        int64 // cents, 0 when absent
	BidSize    int64
	AskSize    int64
	Volume     int64 // session volume
	SpreadBps  int64
	TakenAt    time.Time
}

// Mid returns the quote midpoint, falling back to the last trade price
// when either side of the quote is missing.
func (s MarketSnapshot) Mid() int64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.LastPrice
}
