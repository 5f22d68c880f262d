package engine

import "github.com/reqboard/reqboard/internal/request"

// EventType names a diff event on the wire.
type EventType string

const (
	// EventAdd is sent when a new request starts being tracked
	EventAdd EventType = "add-message"

	// EventUpdate is sent when a tracked request changes
	EventUpdate EventType = "update-message"

	// EventDelete is sent when a tracked request is removed
	EventDelete EventType = "delete-message"
)

// Event is a single change to the tracked set. Add and update events carry a copy of
// the request; delete events carry only its id.
type Event struct {
	Type    EventType        `json:"type"`
	Request *request.Request `json:"request,omitempty"`
	ID      string           `json:"id,omitempty"`
}

// Sink receives diff events. Publish must not block on the network; delivery is best
// effort.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Sinks fans an event out to several sinks in order.
type Sinks []Sink

// Publish hands e to every non-nil sink.
func (s Sinks) Publish(e Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(e)
		}
	}
}
