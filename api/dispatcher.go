// File: api/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event fan-out for connection notifications. A single delivery
// goroutine drains an unbounded FIFO, so a slow subscriber can never
// stall the receive loop that publishes events.

package api

import (
	"sync"

	"github.com/eapache/queue"
)

// Dispatcher fans out events to registered subscribers, preserving
// publish order and delivering each event to every subscriber at least
// once.
type Dispatcher struct {
	mu      sync.Mutex
	subs    []func(Event)
	pending *queue.Queue
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewDispatcher constructs a running Dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.deliverLoop()
	return d
}

// Subscribe registers fn to receive all subsequently published events.
func (d *Dispatcher) Subscribe(fn func(Event)) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// Publish enqueues ev for delivery. Never blocks on subscribers.
func (d *Dispatcher) Publish(ev Event) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.pending.Add(ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting new events, delivers everything already
// queued, and waits for the delivery goroutine to exit. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.done)
	d.wg.Wait()
}

// deliverLoop pops queued events one at a time and invokes subscribers
// outside the lock.
func (d *Dispatcher) deliverLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.pending.Length() == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.pending.Remove().(Event)
		subs := make([]func(Event), len(d.subs))
		copy(subs, d.subs)
		d.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
	}
}
