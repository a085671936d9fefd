package signaling

import (
	"context"
	"time"
)

// Member describes one presence entry in a room. Host is stamped by the
// signaling server from the validated room token, never trusted from clients.
type Member struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	Host        bool      `json:"host,omitempty"`
}

// Event is the closed union of everything a channel can deliver.
// Exactly one goroutine should consume Events(); see Dispatcher.
type Event interface{ isEvent() }

// PresenceSync carries the full current membership of the room.
type PresenceSync struct{ Members []Member }

// PresenceJoin carries members that just appeared.
type PresenceJoin struct{ Members []Member }

// PresenceLeave carries members that just departed.
type PresenceLeave struct{ Members []Member }

// Inbound is one broadcast message received from another participant.
// Payload is the raw JSON wire shape for the given event type; see message.go.
type Inbound struct {
	Event   EventType
	Payload []byte
}

func (PresenceSync) isEvent()  {}
func (PresenceJoin) isEvent()  {}
func (PresenceLeave) isEvent() {}
func (Inbound) isEvent()       {}

// Channel is a room-scoped, at-least-once, per-sender-ordered pub/sub
// transport with presence. Implemented by WSChannel against the dev server;
// the production deployment swaps in a backend-as-a-service adapter.
type Channel interface {
	// Track announces our presence. Must be called after the subscription is
	// live; sends before that are dropped by the transport.
	Track(ctx context.Context, self Member) error

	// Broadcast publishes a payload to every other member of the room.
	// The transport does not echo it back to the sender.
	Broadcast(ctx context.Context, event EventType, payload any) error

	// Events delivers presence and broadcast events in arrival order.
	// Closed when the channel shuts down.
	Events() <-chan Event

	// Leave unsubscribes and releases the transport.
	Leave() error
}
