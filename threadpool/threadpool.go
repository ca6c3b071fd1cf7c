// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package threadpool implements a bounded, resizable pool of worker
// goroutines that execute jobs pulled from a [Source].
//
// # Shrinking
//
// Shrinking the pool by k removes workers one at a time. For each worker to
// remove, [Pool.Resize] posts a one-shot quit request, wakes one worker, and
// waits for some worker to report that it has exited before joining it. A
// worker checks for a quit request only between jobs, so a shrink never
// interrupts a job in progress, and each request retires exactly one worker.
// Jobs queued during a shrink remain in the source for the survivors.
package threadpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/taskgroup"
)

// ErrStopped is reported when a job or resize is requested for a pool that
// has been terminated or joined.
var ErrStopped = errors.New("thread pool is stopped")

// A Pool is a resizable set of workers. A Pool is safe for concurrent use by
// multiple goroutines.
type Pool struct {
	resize sync.Mutex    // serializes Resize, Terminate and Join
	exited chan struct{} // unbuffered; a worker honoring a quit request
	tasks  *taskgroup.Group

	μ        sync.Mutex
	cond     *sync.Cond
	src      Source
	workers  map[int]*worker
	nextID   int
	quit     int // pending one-shot quit requests
	exitID   int // ID of the worker most recently honoring a quit request
	active   int // jobs in progress
	stopped  bool
	draining bool
	onPanic  func(any)
}

type worker struct {
	done chan struct{} // closed when the worker goroutine returns
}

// New constructs a pool of n workers pulling jobs from src. If src == nil, an
// unbounded [FIFO] source is used.
func New(n int, src Source) *Pool {
	if src == nil {
		src = FIFO()
	}
	p := &Pool{
		exited:  make(chan struct{}),
		tasks:   taskgroup.New(nil),
		src:     src,
		workers: make(map[int]*worker),
	}
	p.cond = sync.NewCond(&p.μ)
	p.μ.Lock()
	defer p.μ.Unlock()
	for range n {
		p.startLocked()
	}
	return p
}

// OnPanic registers f to be called with the value of any panic recovered from
// a job, and returns p to permit chaining. By default recovered panics are
// discarded.
func (p *Pool) OnPanic(f func(any)) *Pool {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.onPanic = f
	return p
}

// startLocked starts a new worker. The caller must hold p.μ.
func (p *Pool) startLocked() {
	id := p.nextID
	p.nextID++
	w := &worker{done: make(chan struct{})}
	p.workers[id] = w
	p.tasks.Go(func() error {
		defer close(w.done)
		p.run(id)
		return nil
	})
}

func (p *Pool) run(id int) {
	p.μ.Lock()
	for {
		if p.quit > 0 {
			p.quit--
			p.exitID = id
			if p.src.Len() != 0 {
				p.cond.Signal() // pass on any wakeup intended for a job
			}
			p.μ.Unlock()
			p.exited <- struct{}{}
			return
		}
		if p.stopped {
			p.μ.Unlock()
			return
		}
		if job, ok := p.src.Pop(); ok {
			p.active++
			p.μ.Unlock()
			p.exec(job)
			p.μ.Lock()
			p.active--
			continue
		}
		if p.draining {
			p.μ.Unlock()
			return
		}
		p.cond.Wait()
	}
}

func (p *Pool) exec(job Job) {
	defer func() {
		if x := recover(); x != nil {
			p.μ.Lock()
			f := p.onPanic
			p.μ.Unlock()
			if f != nil {
				f(x)
			}
		}
	}()
	job()
}

// Submit adds job to the source and wakes a worker to run it. It reports
// [ErrStopped] if the pool is stopped, or the error from the source if it
// rejects the job.
func (p *Pool) Submit(job Job) error {
	p.μ.Lock()
	defer p.μ.Unlock()
	if p.stopped || p.draining {
		return ErrStopped
	}
	if err := p.src.Push(job); err != nil {
		return err
	}
	p.cond.Signal()
	return nil
}

// Resize changes the number of workers in p to n. Growing starts new workers
// immediately. Shrinking retires workers one at a time, each between jobs, and
// Resize does not return until all the retired workers have exited.
func (p *Pool) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("invalid pool size %d", n)
	}
	p.resize.Lock()
	defer p.resize.Unlock()

	p.μ.Lock()
	if p.stopped || p.draining {
		p.μ.Unlock()
		return ErrStopped
	}
	for len(p.workers) < n {
		p.startLocked()
	}
	k := len(p.workers) - n
	p.μ.Unlock()

	for range k {
		p.shrinkOne()
	}
	return nil
}

// shrinkOne retires exactly one worker. The caller must hold p.resize.
func (p *Pool) shrinkOne() {
	p.μ.Lock()
	p.quit++
	p.cond.Signal()
	p.μ.Unlock()

	<-p.exited

	p.μ.Lock()
	w := p.workers[p.exitID]
	delete(p.workers, p.exitID)
	p.μ.Unlock()
	<-w.done
}

// Size reports the number of live workers in p.
func (p *Pool) Size() int {
	p.μ.Lock()
	defer p.μ.Unlock()
	return len(p.workers)
}

// Pending reports the number of jobs queued and not yet started.
func (p *Pool) Pending() int {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.src.Len()
}

// Active reports the number of jobs currently executing.
func (p *Pool) Active() int {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.active
}

// Terminate stops all workers as soon as their current jobs finish, discarding
// any queued jobs that have not started. It blocks until every worker has
// exited, and reports the number of jobs discarded.
func (p *Pool) Terminate() int {
	p.resize.Lock()
	defer p.resize.Unlock()

	p.μ.Lock()
	p.stopped = true
	n := p.src.Clear()
	p.cond.Broadcast()
	p.μ.Unlock()

	p.finish()
	return n
}

// Join waits for the workers of p to run all queued jobs and then exit. No
// further jobs may be submitted once Join has been called. If the pool has no
// workers, any queued jobs are discarded.
func (p *Pool) Join() {
	p.resize.Lock()
	defer p.resize.Unlock()

	p.μ.Lock()
	p.draining = true
	if len(p.workers) == 0 {
		p.src.Clear()
	}
	p.cond.Broadcast()
	p.μ.Unlock()

	p.finish()
}

func (p *Pool) finish() {
	p.tasks.Wait()
	p.μ.Lock()
	clear(p.workers)
	p.μ.Unlock()
}
