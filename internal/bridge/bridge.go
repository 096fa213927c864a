// Package bridge runs a workflow engine on its own goroutine and exposes its
// progress as an ordered event stream. Consumers read from a bounded channel;
// the channel closes after exactly one terminal event.
package bridge

import (
	"context"
	"sync"
	"time"

	"taskpilot/internal/engine"
)

// EventKind discriminates stream events.
type EventKind int

const (
	// EventStep is one step-log entry or gateway progress note.
	EventStep EventKind = iota

	// EventRoute reports the routing decision, once per request.
	EventRoute

	// EventKeepAlive is a liveness tick emitted while the run is in flight.
	EventKeepAlive

	// EventClarification is a terminal event: the run suspended on a
	// follow-up question.
	EventClarification

	// EventFinal is a terminal event carrying the final result.
	EventFinal

	// EventError is a terminal event carrying the error message.
	EventError
)

// Event is one entry in the stream. Terminal events carry the full run
// result.
type Event struct {
	Kind   EventKind
	Text   string
	Route  engine.Route
	Result *engine.Result
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventClarification, EventFinal, EventError:
		return true
	}
	return false
}

const (
	// DefaultCapacity bounds the event channel. A full buffer applies
	// backpressure to the engine rather than dropping events.
	DefaultCapacity = 64

	// DefaultKeepAlive is the liveness tick interval while a run is in
	// flight.
	DefaultKeepAlive = 5 * time.Second
)

// Options tune one bridged run. Zero values select the defaults; a negative
// KeepAlive disables the ticks.
type Options struct {
	Capacity  int
	KeepAlive time.Duration
}

func (o Options) capacity() int {
	if o.Capacity > 0 {
		return o.Capacity
	}
	return DefaultCapacity
}

func (o Options) keepAlive() time.Duration {
	if o.KeepAlive < 0 {
		return 0
	}
	if o.KeepAlive == 0 {
		return DefaultKeepAlive
	}
	return o.KeepAlive
}

// Run starts the engine on its own goroutine and returns the event channel.
//
// Events arrive in engine order. The channel closes after exactly one
// terminal event. Cancelling ctx abandons the stream: pending sends are
// dropped, the engine unwinds through its context, and all goroutines exit.
func Run(ctx context.Context, eng *engine.Engine, input string, opts Options) <-chan Event {
	out := make(chan Event, opts.capacity())
	interval := opts.keepAlive()

	go func() {
		defer close(out)

		obs := &streamObserver{ctx: ctx, out: out}

		done := make(chan struct{})
		var wg sync.WaitGroup
		if interval > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ctx.Done():
						return
					case <-ticker.C:
						obs.send(Event{Kind: EventKeepAlive})
					}
				}
			}()
		}

		res := eng.Run(ctx, input, obs)

		close(done)
		wg.Wait()

		obs.send(terminalEvent(res))
	}()

	return out
}

func terminalEvent(res *engine.Result) Event {
	ev := Event{Route: res.Route, Result: res}
	switch res.Outcome {
	case engine.OutcomeClarification:
		ev.Kind = EventClarification
		ev.Text = res.Question
	case engine.OutcomeError:
		ev.Kind = EventError
		ev.Text = res.ErrorMessage
	default:
		ev.Kind = EventFinal
		ev.Text = res.FinalResult
	}
	return ev
}

// streamObserver forwards engine progress into the event channel. Sends
// block when the buffer is full and abort when the context is cancelled.
type streamObserver struct {
	ctx context.Context
	out chan Event
}

func (o *streamObserver) Step(text string) {
	o.send(Event{Kind: EventStep, Text: text})
}

func (o *streamObserver) RouteDecided(r engine.Route) {
	o.send(Event{Kind: EventRoute, Route: r, Text: r.String()})
}

func (o *streamObserver) send(ev Event) {
	select {
	case o.out <- ev:
	case <-o.ctx.Done():
	}
}
