// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package bufpool implements a bounded pool of fixed-size byte buffers for
// encoding, decoding and raw I/O.
//
// Buffers live in an arena addressed by index, and the free list is a deque
// of arena indices. A [Buffer] is owned by exactly one holder at a time: a
// caller that acquired it, or the pool free list.
//
// # Forward progress
//
// A caller that owns no buffers yet (holding == 0) blocks in [Pool.Acquire]
// when the pool is at capacity, until another caller releases. A caller that
// already owns at least one buffer never blocks: if the pool is at capacity
// it allocates past the bound. Otherwise every caller could hold one buffer
// and wait forever for a second.
package bufpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrExhausted is reported when a caller holding no buffers cannot obtain one.
var ErrExhausted = errors.New("buffer pool exhausted")

// Default settings used when the corresponding Config field is zero.
const (
	DefaultSize     = 4096
	DefaultCapacity = 256
)

// Config carries the settings for a [Pool].
type Config struct {
	// Size is the capacity in bytes of each buffer. If zero, DefaultSize.
	Size int

	// Capacity bounds the number of live buffers (held plus free) available
	// to callers that hold no buffers. If zero, DefaultCapacity.
	Capacity int
}

// A Buffer is a fixed-capacity block of bytes owned by a single holder.
type Buffer struct {
	slot    int32 // index in the pool arena
	data    []byte
	n       int  // bytes in use
	slotted bool // counts against the capacity semaphore
	inUse   bool
}

// Bytes returns the in-use prefix of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Space returns the unused suffix of the buffer.
func (b *Buffer) Space() []byte { return b.data[b.n:] }

// Len reports the number of bytes in use.
func (b *Buffer) Len() int { return b.n }

// Cap reports the fixed capacity of the buffer.
func (b *Buffer) Cap() int { return len(b.data) }

// SetLen sets the number of bytes in use. It panics if n is out of range.
func (b *Buffer) SetLen(n int) {
	if n < 0 || n > len(b.data) {
		panic(fmt.Sprintf("bufpool: length %d out of range [0, %d]", n, len(b.data)))
	}
	b.n = n
}

// A Chain is a sequence of buffers acquired together.
type Chain []*Buffer

// Len reports the total number of bytes in use across the chain.
func (c Chain) Len() int {
	var n int
	for _, b := range c {
		n += b.n
	}
	return n
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Live      int   // buffers currently in existence (held + free)
	Free      int   // buffers on the free list
	Held      int   // buffers owned by callers
	Allocated int64 // buffers ever allocated
	Destroyed int64 // buffers ever destroyed
}

// A Pool is a bounded pool of reusable buffers. A Pool is safe for concurrent
// use by multiple goroutines.
type Pool struct {
	size     int
	capacity int
	sem      *semaphore.Weighted // counts slotted held buffers

	μ         sync.Mutex
	slots     []*Buffer // arena; nil entries are vacant
	vacant    []int32   // vacant arena indices
	free      []int32   // free list, oldest first
	held      int
	allocated int64
	destroyed int64
}

// New constructs a new empty pool with the given settings.
func New(cfg Config) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		size:     size,
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Size reports the capacity in bytes of each buffer in p.
func (p *Pool) Size() int { return p.size }

// Capacity reports the configured live-buffer bound of p.
func (p *Pool) Capacity() int { return p.capacity }

// Acquire returns a chain of buffers large enough to hold nbytes (at least
// one buffer). The caller reports how many buffers it already owns.
//
// If holding == 0 and the pool is at capacity, Acquire blocks until buffers
// are released or ctx ends; in the latter case it reports [ErrExhausted].
// If holding >= 1, Acquire never blocks and never fails.
func (p *Pool) Acquire(ctx context.Context, holding, nbytes int) (Chain, error) {
	n := max(1, (nbytes+p.size-1)/p.size)
	if holding > 0 {
		return p.take(n, p.sem.TryAcquire(int64(n))), nil
	}
	if n > p.capacity {
		return nil, fmt.Errorf("request for %d buffers exceeds capacity %d: %w", n, p.capacity, ErrExhausted)
	}
	if err := p.sem.Acquire(ctx, int64(n)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExhausted, err)
	}
	return p.take(n, true), nil
}

// take removes n buffers from the free list, allocating any shortfall.
func (p *Pool) take(n int, slotted bool) Chain {
	out := make(Chain, 0, n)

	p.μ.Lock()
	for len(out) < n && len(p.free) != 0 {
		last := len(p.free) - 1
		b := p.slots[p.free[last]]
		p.free = p.free[:last]
		out = append(out, b)
	}
	p.held += n
	short := n - len(out)
	p.μ.Unlock()

	// Allocate the shortfall without holding the lock, then install the new
	// buffers into the arena.
	fresh := make([]*Buffer, short)
	for i := range fresh {
		fresh[i] = &Buffer{data: make([]byte, p.size)}
	}
	if short > 0 {
		p.μ.Lock()
		for _, b := range fresh {
			if k := len(p.vacant); k != 0 {
				b.slot = p.vacant[k-1]
				p.vacant = p.vacant[:k-1]
				p.slots[b.slot] = b
			} else {
				b.slot = int32(len(p.slots))
				p.slots = append(p.slots, b)
			}
		}
		p.allocated += int64(short)
		p.μ.Unlock()
		out = append(out, fresh...)
	}

	for _, b := range out {
		b.n = 0
		b.slotted = slotted
		b.inUse = true
	}
	return out
}

// Release returns the buffers in c to the pool. The caller must not use any
// buffer of c after Release returns. Releasing a buffer that is not held
// panics. Nil entries in c are ignored.
//
// If the free list grows beyond its bound, the oldest free buffers are
// unlinked from the arena and destroyed after the pool lock is released.
func (p *Pool) Release(c Chain) {
	var nslot int64
	var doomed []*Buffer

	p.μ.Lock()
	for _, b := range c {
		if b == nil {
			continue
		} else if !b.inUse {
			p.μ.Unlock()
			panic("bufpool: buffer released while not held")
		}
		if b.slotted {
			nslot++
		}
		b.inUse, b.slotted, b.n = false, false, 0
		p.free = append(p.free, b.slot)
		p.held--
	}
	if excess := len(p.free) - max(0, p.capacity-p.held); excess > 0 {
		for _, idx := range p.free[:excess] {
			doomed = append(doomed, p.slots[idx])
			p.slots[idx] = nil
			p.vacant = append(p.vacant, idx)
		}
		p.free = append(p.free[:0], p.free[excess:]...)
		p.destroyed += int64(excess)
	}
	p.μ.Unlock()

	for _, b := range doomed {
		b.data = nil
	}
	if nslot > 0 {
		p.sem.Release(nslot)
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.μ.Lock()
	defer p.μ.Unlock()
	return Stats{
		Live:      p.held + len(p.free),
		Free:      len(p.free),
		Held:      p.held,
		Allocated: p.allocated,
		Destroyed: p.destroyed,
	}
}
