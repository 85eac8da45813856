// Package events defines the typed envelopes published on the event bus
// and the in-process fan-out used by transports and webhook delivery.
package events

import (
	"encoding/json"
	"time"

	"github.com/orderdesk/orderdesk/pkg/order"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	OrderStarted    EventType = "order.started"
	StateTransition EventType = "state.transition"
	InputRejected   EventType = "input.rejected"
	OrderCompleted  EventType = "order.completed"
	OrderCancelled  EventType = "order.cancelled"
	SessionExpired  EventType = "session.expired"
	WebhookTest     EventType = "webhook.test"
	SystemError     EventType = "error"
)

// subscribable is the closed set of types webhook endpoints may sign up
// for. Anything else on the wire is a typo or a foreign producer.
var subscribable = map[EventType]bool{
	OrderStarted:    true,
	StateTransition: true,
	InputRejected:   true,
	OrderCompleted:  true,
	OrderCancelled:  true,
	SessionExpired:  true,
	WebhookTest:     true,
	SystemError:     true,
}

// Subscribable reports whether webhook endpoints may subscribe to this
// event type.
func (t EventType) Subscribable() bool {
	return subscribable[t]
}

// SubscribableTypes returns the event types available for webhook
// subscriptions, in the order the flow produces them.
func SubscribableTypes() []EventType {
	return []EventType{
		OrderStarted,
		StateTransition,
		InputRejected,
		OrderCompleted,
		OrderCancelled,
		SessionExpired,
		WebhookTest,
		SystemError,
	}
}

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OrderStartedData is the payload for order.started events.
type OrderStartedData struct {
	ScriptName string `json:"script_name"`
	Channel    string `json:"channel,omitempty"`
}

// StateTransitionData is the payload for state.transition events.
type StateTransitionData struct {
	FromState  order.State `json:"from_state"`
	ToState    order.State `json:"to_state"`
	Input      string      `json:"input"`
	ScriptName string      `json:"script_name"`
}

// InputRejectedData is the payload for input.rejected events.
type InputRejectedData struct {
	State  order.State `json:"state"`
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
}

// OrderCompletedData is the payload for order.completed events: the
// finished record itself, money fields serialized with exact scale.
type OrderCompletedData struct {
	Order order.OrderRecord `json:"order"`
}

// OrderCancelledData is the payload for order.cancelled events.
type OrderCancelledData struct {
	State order.State `json:"state"` // state the flow was in when cancelled
}

// SessionExpiredData is the payload for session.expired events.
type SessionExpiredData struct {
	State     order.State `json:"state"`
	IdleSince time.Time   `json:"idle_since"`
}

// WebhookTestData is the payload for webhook.test events.
type WebhookTestData struct {
	WebhookID string `json:"webhook_id"`
	Message   string `json:"message"`
}

// DeliveryFailureData is the payload for error events raised when a
// webhook delivery exhausts its retries and is dead-lettered.
type DeliveryFailureData struct {
	WebhookID string    `json:"webhook_id"`
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
}
