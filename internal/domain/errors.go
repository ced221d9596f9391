package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists   = errors.New("account_already_exists")
	ErrAccountNotFound        = errors.New("account_not_found")
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrAlgoOrderNotFound      = errors.New("algo_order_not_found")
	ErrInstrumentNotFound     = errors.New("instrument_not_found")
	ErrPositionNotFound       = errors.New("position_not_found")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrRiskRejected           = errors.New("risk_rejected")
	ErrNoLiquidity            = errors.New("no_liquidity")
	ErrUnknownAlgorithmType   = errors.New("unknown_algorithm_type")
	ErrEventBusClosed         = errors.New("event_bus_closed")
)

// ValidationError represents a request validation failure. Validation
// failures are fatal to the single order and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
