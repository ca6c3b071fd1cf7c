// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package threadpool

import (
	"errors"

	"github.com/eapache/queue"
)

// ErrFull is reported by a bounded [Source] that cannot accept another job.
var ErrFull = errors.New("job queue is full")

// A Job is a unit of work executed by a pool worker.
type Job func()

// A Source is a pull-only queue of jobs feeding a [Pool]. The pool serializes
// all calls to the methods of its source, so an implementation need not be
// safe for concurrent use.
type Source interface {
	// Push adds a job to the source, or reports an error if it cannot.
	Push(Job) error

	// Pop removes and returns the next job, or reports false if none remain.
	Pop() (Job, bool)

	// Len reports the number of jobs in the source.
	Len() int

	// Clear discards all queued jobs and reports how many were discarded.
	Clear() int
}

// FIFO returns an unbounded first-in, first-out job source.
func FIFO() Source { return &fifo{q: queue.New()} }

// Bounded returns a first-in, first-out job source holding at most n jobs.
// Push reports [ErrFull] when the source is at capacity.
func Bounded(n int) Source { return &fifo{q: queue.New(), max: n} }

type fifo struct {
	q   *queue.Queue
	max int // 0 means unbounded
}

func (f *fifo) Push(job Job) error {
	if f.max > 0 && f.q.Length() >= f.max {
		return ErrFull
	}
	f.q.Add(job)
	return nil
}

func (f *fifo) Pop() (Job, bool) {
	if f.q.Length() == 0 {
		return nil, false
	}
	return f.q.Remove().(Job), true
}

func (f *fifo) Len() int { return f.q.Length() }

func (f *fifo) Clear() int {
	n := f.q.Length()
	f.q = queue.New()
	return n
}
