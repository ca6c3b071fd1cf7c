// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package mux implements a readiness multiplexer over a set of transport
// handles.
//
// A [Multiplexer] tracks handles with per-handle event masks. Readiness
// sources report events with [Multiplexer.Notify]; a single consumer waits
// with [Multiplexer.Poll] and collects the ready set with
// [Multiplexer.Signal]. This lets one goroutine service many connections
// without dedicating a loop to each.
package mux

import (
	"strings"
	"sync"
	"time"
)

// A Handle identifies one tracked transport.
type Handle uint32

// Events is a bit mask of readiness events.
type Events uint8

// Readiness events. Hangup and Error are always delivered for a tracked
// handle regardless of its mask.
const (
	Readable Events = 1 << iota
	Writable
	Hangup
	Error

	alwaysDelivered = Hangup | Error
)

func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, v := range []struct {
		bit  Events
		name string
	}{{Readable, "read"}, {Writable, "write"}, {Hangup, "hangup"}, {Error, "error"}} {
		if e&v.bit != 0 {
			parts = append(parts, v.name)
		}
	}
	return strings.Join(parts, "|")
}

// A Multiplexer tracks readiness for a set of handles. It is safe for
// concurrent use: any number of goroutines may call Notify, while one
// consumer polls and signals.
type Multiplexer struct {
	wake chan struct{} // buffered, capacity 1

	μ     sync.Mutex
	mask  map[Handle]Events
	ready map[Handle]Events
	order []Handle // ready handles, in order of first readiness
	intr  bool     // interrupt pending
}

// New constructs a new empty multiplexer.
func New() *Multiplexer {
	return &Multiplexer{
		wake:  make(chan struct{}, 1),
		mask:  make(map[Handle]Events),
		ready: make(map[Handle]Events),
	}
}

func (m *Multiplexer) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Add begins tracking h for the events in mask, or adds mask to the events
// already tracked for h.
func (m *Multiplexer) Add(h Handle, mask Events) {
	m.μ.Lock()
	defer m.μ.Unlock()
	m.mask[h] |= mask
}

// Remove stops tracking the events in mask for h. When no events remain, h
// is no longer tracked and any readiness pending for it is discarded.
func (m *Multiplexer) Remove(h Handle, mask Events) {
	m.μ.Lock()
	defer m.μ.Unlock()
	cur, ok := m.mask[h]
	if !ok {
		return
	}
	if cur &^= mask; cur != 0 {
		m.mask[h] = cur
		return
	}
	delete(m.mask, h)
	if _, ok := m.ready[h]; ok {
		delete(m.ready, h)
		for i, r := range m.order {
			if r == h {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Notify reports that events have occurred on h, and wakes a blocked poller.
// Events not in the mask of h are ignored, except Hangup and Error. Notify
// reports whether h is tracked.
func (m *Multiplexer) Notify(h Handle, events Events) bool {
	m.μ.Lock()
	mask, ok := m.mask[h]
	if !ok {
		m.μ.Unlock()
		return false
	}
	if ev := events & (mask | alwaysDelivered); ev != 0 {
		if _, pending := m.ready[h]; !pending {
			m.order = append(m.order, h)
		}
		m.ready[h] |= ev
	}
	m.μ.Unlock()
	m.poke()
	return true
}

// Poll blocks until at least one handle is ready, and returns the number of
// ready handles. It returns 0 if the wait was interrupted.
func (m *Multiplexer) Poll() int { return m.PollTimeout(-1) }

// PollTimeout blocks until at least one handle is ready or d has elapsed, and
// returns the number of ready handles. It returns 0 on timeout or interrupt.
// A negative d waits without limit.
func (m *Multiplexer) PollTimeout(d time.Duration) int {
	var timeout <-chan time.Time
	if d >= 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	for {
		m.μ.Lock()
		if m.intr {
			m.intr = false
			m.μ.Unlock()
			return 0
		}
		n := len(m.order)
		m.μ.Unlock()
		if n != 0 {
			return n
		}

		select {
		case <-m.wake:
		case <-timeout:
			return 0
		}
	}
}

// Interrupt causes a blocked or the next call to Poll to return 0.
func (m *Multiplexer) Interrupt() {
	m.μ.Lock()
	m.intr = true
	m.μ.Unlock()
	m.poke()
}

// Signal calls f once for each ready handle with its ready events, in order
// of first readiness, and clears the ready set. It returns the number of
// handles signalled. f is called without the lock held, and may call other
// methods of m.
func (m *Multiplexer) Signal(f func(Handle, Events)) int {
	m.μ.Lock()
	order, ready := m.order, m.ready
	m.order, m.ready = nil, make(map[Handle]Events)
	m.μ.Unlock()

	for _, h := range order {
		f(h, ready[h])
	}
	return len(order)
}

// Len reports the number of handles tracked by m.
func (m *Multiplexer) Len() int {
	m.μ.Lock()
	defer m.μ.Unlock()
	return len(m.mask)
}
