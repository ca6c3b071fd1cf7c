// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package threadpool_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/orb/threadpool"
	"github.com/fortytw2/leaktest"
)

func TestSubmitJoin(t *testing.T) {
	defer leaktest.Check(t)()

	p := threadpool.New(3, nil)
	if n := p.Size(); n != 3 {
		t.Errorf("Size: got %d, want 3", n)
	}
	var count atomic.Int64
	for range 100 {
		if err := p.Submit(func() { count.Add(1) }); err != nil {
			t.Fatalf("Submit: unexpected error: %v", err)
		}
	}
	p.Join()
	if got := count.Load(); got != 100 {
		t.Errorf("Jobs run: got %d, want 100", got)
	}
	if err := p.Submit(func() {}); !errors.Is(err, threadpool.ErrStopped) {
		t.Errorf("Submit after Join: got %v, want %v", err, threadpool.ErrStopped)
	}
	if err := p.Resize(5); !errors.Is(err, threadpool.ErrStopped) {
		t.Errorf("Resize after Join: got %v, want %v", err, threadpool.ErrStopped)
	}
}

// Shrinking by k while m > k jobs are queued retires exactly k workers, none
// of them mid-job, and drops none of the queued jobs.
func TestShrinkKeepsJobs(t *testing.T) {
	defer leaktest.Check(t)()

	const workers, keep, queued = 5, 2, 12
	p := threadpool.New(workers, nil)

	var ran atomic.Int64
	gate := make(chan struct{})
	started := make(chan struct{}, workers)
	for range workers {
		p.Submit(func() {
			started <- struct{}{}
			<-gate
			ran.Add(1)
		})
	}
	for range workers {
		<-started // every worker is now mid-job
	}
	for range queued {
		p.Submit(func() { ran.Add(1) })
	}

	done := make(chan error)
	go func() { done <- p.Resize(keep) }()

	// No worker can be retired while all of them are busy.
	select {
	case err := <-done:
		t.Fatalf("Resize returned early (%v) with all workers busy", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := p.Pending(); n != queued {
		t.Errorf("Pending during shrink: got %d, want %d", n, queued)
	}
	if n := p.Active(); n != workers {
		t.Errorf("Active during shrink: got %d, want %d", n, workers)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Resize: unexpected error: %v", err)
	}
	if n := p.Size(); n != keep {
		t.Errorf("Size after shrink: got %d, want %d", n, keep)
	}

	p.Join()
	if got, want := ran.Load(), int64(workers+queued); got != want {
		t.Errorf("Jobs run: got %d, want %d", got, want)
	}
}

func TestResize(t *testing.T) {
	defer leaktest.Check(t)()

	p := threadpool.New(1, nil)
	defer p.Terminate()

	for _, n := range []int{4, 4, 2, 0, 3, 1} {
		if err := p.Resize(n); err != nil {
			t.Fatalf("Resize(%d): unexpected error: %v", n, err)
		}
		if got := p.Size(); got != n {
			t.Errorf("Size after Resize(%d): got %d", n, got)
		}
	}
	if err := p.Resize(-1); err == nil {
		t.Error("Resize(-1): got nil, want error")
	}

	// Jobs queued with no workers run once workers are added.
	p.Resize(0)
	done := make(chan struct{})
	p.Submit(func() { close(done) })
	if n := p.Pending(); n != 1 {
		t.Errorf("Pending with no workers: got %d, want 1", n)
	}
	p.Resize(1)
	<-done
}

func TestTerminate(t *testing.T) {
	defer leaktest.Check(t)()

	p := threadpool.New(1, nil)
	gate := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int64
	p.Submit(func() {
		close(started)
		<-gate
		ran.Add(1)
	})
	<-started
	for range 5 {
		p.Submit(func() { ran.Add(1) })
	}

	done := make(chan int)
	go func() { done <- p.Terminate() }()
	time.Sleep(10 * time.Millisecond)
	close(gate)

	if n := <-done; n != 5 {
		t.Errorf("Terminate: discarded %d jobs, want 5", n)
	}
	if got := ran.Load(); got != 1 {
		t.Errorf("Jobs run: got %d, want 1", got)
	}
	if err := p.Submit(func() {}); !errors.Is(err, threadpool.ErrStopped) {
		t.Errorf("Submit after Terminate: got %v, want %v", err, threadpool.ErrStopped)
	}
}

func TestBounded(t *testing.T) {
	defer leaktest.Check(t)()

	p := threadpool.New(0, threadpool.Bounded(2))
	var ran atomic.Int64
	job := func() { ran.Add(1) }

	for i := range 2 {
		if err := p.Submit(job); err != nil {
			t.Fatalf("Submit %d: unexpected error: %v", i+1, err)
		}
	}
	if err := p.Submit(job); !errors.Is(err, threadpool.ErrFull) {
		t.Errorf("Submit to full source: got %v, want %v", err, threadpool.ErrFull)
	}

	p.Resize(2)
	p.Join()
	if got := ran.Load(); got != 2 {
		t.Errorf("Jobs run: got %d, want 2", got)
	}
}

func TestPanic(t *testing.T) {
	defer leaktest.Check(t)()

	got := make(chan any, 1)
	p := threadpool.New(1, nil).OnPanic(func(v any) { got <- v })
	p.Submit(func() { panic("kaboom") })
	if v := <-got; v != "kaboom" {
		t.Errorf("OnPanic: got %v, want kaboom", v)
	}

	// The worker survives the panic.
	done := make(chan struct{})
	p.Submit(func() { close(done) })
	<-done
	p.Join()
}
