package signaling

import (
	"context"
	"testing"
	"time"
)

type stubChannel struct {
	events chan Event
}

func (s *stubChannel) Track(ctx context.Context, self Member) error            { return nil }
func (s *stubChannel) Broadcast(ctx context.Context, e EventType, p any) error { return nil }
func (s *stubChannel) Events() <-chan Event                                    { return s.events }
func (s *stubChannel) Leave() error                                            { close(s.events); return nil }

func TestDispatcherDeliversEventsInArrivalOrder(t *testing.T) {
	ch := &stubChannel{events: make(chan Event, 8)}
	var got []Event
	done := make(chan struct{})
	d := NewDispatcher(ch, func(ev Event) { got = append(got, ev) })

	ch.events <- PresenceJoin{Members: []Member{{ID: "a"}}}
	ch.events <- Inbound{Event: EventChat, Payload: []byte(`{"id":"m1"}`)}
	ch.events <- PresenceLeave{Members: []Member{{ID: "a"}}}
	ch.Leave()

	go func() {
		d.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop when the event stream closed")
	}

	if len(got) != 3 {
		t.Fatalf("delivered %d events, want 3", len(got))
	}
	if _, ok := got[0].(PresenceJoin); !ok {
		t.Fatalf("event 0 = %T, want PresenceJoin", got[0])
	}
	if _, ok := got[1].(Inbound); !ok {
		t.Fatalf("event 1 = %T, want Inbound", got[1])
	}
	if _, ok := got[2].(PresenceLeave); !ok {
		t.Fatalf("event 2 = %T, want PresenceLeave", got[2])
	}
}

func TestDispatcherRunsPostedCommands(t *testing.T) {
	ch := &stubChannel{events: make(chan Event)}
	d := NewDispatcher(ch, func(Event) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	ran := make(chan struct{})
	d.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted command never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on ctx cancel")
	}
}
