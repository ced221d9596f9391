package handler

import (
	"net/http"

	"github.com/quantlab/papersim/internal/bus"
	"github.com/quantlab/papersim/internal/domain"
)

// EventHandler exposes the event store for replay and inspection.
type EventHandler struct {
	bus *bus.Bus
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(b *bus.Bus) *EventHandler {
	return &EventHandler{bus: b}
}

type eventResponse struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	Priority   string `json:"priority"`
	Instrument string `json:"instrument,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Payload    any    `json:"payload"`
	OccurredAt string `json:"occurred_at"`
}

// Replay handles GET /events. An optional type query parameter narrows
// the replay to one event type.
func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	t := domain.EventType(r.URL.Query().Get("type"))
	events := h.bus.Replay(t)
	WriteJSON(w, http.StatusOK, map[string]any{"events": buildEventResponses(events)})
}

// DeadLetters handles GET /events/deadletters.
func (h *EventHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	events := h.bus.DeadLetters()
	WriteJSON(w, http.StatusOK, map[string]any{"events": buildEventResponses(events)})
}

func buildEventResponses(events []*domain.Event) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = eventResponse{
			EventID:    ev.EventID,
			Type:       string(ev.Type),
			Priority:   string(ev.Priority),
			Instrument: ev.Instrument,
			UserID:     ev.UserID,
			Payload:    ev.Payload,
			OccurredAt: formatTime(ev.OccurredAt),
		}
	}
	return out
}
