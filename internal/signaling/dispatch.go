package signaling

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Dispatcher drains a channel's events and a command queue on one goroutine.
// This is what makes room state transitions race-free: handlers never run
// concurrently with each other or with externally posted commands.
type Dispatcher struct {
	ch      Channel
	handler func(Event)
	cmds    chan func()
}

func NewDispatcher(ch Channel, handler func(Event)) *Dispatcher {
	return &Dispatcher{
		ch:      ch,
		handler: handler,
		cmds:    make(chan func(), 64),
	}
}

// Post queues fn to run on the dispatch goroutine. Drops the command if the
// dispatcher is saturated; callers treat that like any other lost send.
func (d *Dispatcher) Post(fn func()) {
	select {
	case d.cmds <- fn:
	default:
		log.Warn().Str("module", "signaling.dispatch").Msg("command queue full, dropping")
	}
}

// Run blocks until ctx is canceled or the channel's event stream closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signaling.dispatch").Msg("dispatch ctx done")
			return
		case fn := <-d.cmds:
			fn()
		case ev, ok := <-d.ch.Events():
			if !ok {
				log.Info().Str("module", "signaling.dispatch").Msg("event stream closed")
				return
			}
			d.handler(ev)
		}
	}
}
