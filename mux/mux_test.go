// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package mux_test

import (
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/orb/mux"
	"github.com/google/go-cmp/cmp"
)

type event struct {
	H  mux.Handle
	Ev mux.Events
}

func collect(m *mux.Multiplexer) []event {
	var out []event
	m.Signal(func(h mux.Handle, ev mux.Events) { out = append(out, event{h, ev}) })
	return out
}

func TestMultiplexer(t *testing.T) {
	m := mux.New()
	m.Add(1, mux.Readable)
	m.Add(2, mux.Readable)
	m.Add(2, mux.Writable)
	if n := m.Len(); n != 2 {
		t.Errorf("Len: got %d, want 2", n)
	}

	if m.Notify(5, mux.Readable) {
		t.Error("Notify untracked handle: got true, want false")
	}
	m.Notify(2, mux.Writable)
	m.Notify(1, mux.Readable|mux.Writable) // writable is not in the mask
	m.Notify(2, mux.Readable)
	m.Notify(1, mux.Hangup) // always delivered

	if n := m.Poll(); n != 2 {
		t.Errorf("Poll: got %d, want 2", n)
	}
	want := []event{
		{2, mux.Readable | mux.Writable},
		{1, mux.Readable | mux.Hangup},
	}
	if diff := cmp.Diff(collect(m), want); diff != "" {
		t.Errorf("Signal (-got, +want):\n%s", diff)
	}
	if got := collect(m); len(got) != 0 {
		t.Errorf("Signal after clear: got %v, want none", got)
	}

	// Removing a handle discards its pending readiness.
	m.Notify(1, mux.Readable)
	m.Notify(2, mux.Readable)
	m.Remove(1, mux.Readable)
	if diff := cmp.Diff(collect(m), []event{{2, mux.Readable}}); diff != "" {
		t.Errorf("Signal after remove (-got, +want):\n%s", diff)
	}
	if n := m.Len(); n != 1 {
		t.Errorf("Len after remove: got %d, want 1", n)
	}

	// Removing part of a mask keeps the handle.
	m.Remove(2, mux.Writable)
	m.Notify(2, mux.Writable)
	if got := collect(m); len(got) != 0 {
		t.Errorf("Signal for removed event: got %v, want none", got)
	}
	if got := mux.Readable | mux.Hangup; got.String() != "read|hangup" {
		t.Errorf("String: got %q, want %q", got.String(), "read|hangup")
	}
}

func TestPollTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := mux.New()
		m.Add(1, mux.Readable)

		start := time.Now()
		if n := m.PollTimeout(50 * time.Millisecond); n != 0 {
			t.Errorf("PollTimeout: got %d, want 0", n)
		}
		if d := time.Since(start); d != 50*time.Millisecond {
			t.Errorf("PollTimeout waited %v, want 50ms", d)
		}

		go func() {
			time.Sleep(10 * time.Millisecond)
			m.Notify(1, mux.Readable)
		}()
		if n := m.PollTimeout(time.Second); n != 1 {
			t.Errorf("PollTimeout with notify: got %d, want 1", n)
		}
		collect(m)
	})
}

func TestInterrupt(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := mux.New()
		m.Add(1, mux.Readable)

		done := make(chan int)
		go func() { done <- m.Poll() }()
		synctest.Wait()
		select {
		case n := <-done:
			t.Fatalf("Poll returned %d before interrupt", n)
		default:
		}

		m.Interrupt()
		if n := <-done; n != 0 {
			t.Errorf("Poll after interrupt: got %d, want 0", n)
		}

		// The interrupt is consumed by one poll.
		m.Notify(1, mux.Readable)
		if n := m.Poll(); n != 1 {
			t.Errorf("Poll: got %d, want 1", n)
		}
	})
}
