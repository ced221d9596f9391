package domain

import "time"

// EventType names a domain event published on the event bus.
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderFilled        EventType = "order.filled"
	EventOrderCancelled     EventType = "order.cancelled"
	EventOrderRejected      EventType = "order.rejected"
	EventOrderExpired       EventType = "order.expired"
	EventAlgorithmStarted   EventType = "algorithm.started"
	EventAlgorithmStep      EventType = "algorithm.step"
	EventAlgorithmCompleted EventType = "algorithm.completed"
	EventAlgorithmFailed    EventType = "algorithm.failed"
	EventAlgorithmCancelled EventType = "algorithm.cancelled"
	EventRiskAlert          EventType = "risk.alert"
	EventPortfolioUpdated   EventType = "portfolio.updated"
	EventMarketDataUpdated  EventType = "market_data.updated"
)

// EventPriority annotates an event for downstream consumers. It does
// not affect processing order within the bus.
type EventPriority string

const (
	PriorityCritical EventPriority = "critical"
	PriorityHigh     EventPriority = "high"
	PriorityNormal   EventPriority = "normal"
	PriorityLow      EventPriority = "low"
)

// Event is a published domain event. Payload is a plain struct owned
// by the publisher; serialization is the consumer's concern.
type Event struct {
	EventID    string
	Type       EventType
	Priority   EventPriority
	Instrument string
	UserID     string
	Payload    any
	OccurredAt time.Time
}
