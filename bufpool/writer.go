// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package bufpool

import (
	"context"
	"fmt"
	"io"
	"net"
)

// A Writer accumulates bytes into a chain of pooled buffers. It implements
// [io.Writer] and [io.ByteWriter], and its writes never fail: once the first
// buffer is held, growth acquires further buffers without blocking.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	pool  *Pool
	chain Chain
}

// NewWriter acquires a first buffer from p and returns a Writer that appends
// to it. It blocks as [Pool.Acquire] does for a caller holding no buffers.
func NewWriter(ctx context.Context, p *Pool) (*Writer, error) {
	c, err := p.Acquire(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	return &Writer{pool: p, chain: c}, nil
}

// Write appends data to the chain. It always reports len(data), nil.
func (w *Writer) Write(data []byte) (int, error) {
	nw := 0
	for len(data) != 0 {
		last := w.chain[len(w.chain)-1]
		if last.n == len(last.data) {
			w.grow(len(data))
			continue
		}
		n := copy(last.data[last.n:], data)
		last.n += n
		data = data[n:]
		nw += n
	}
	return nw, nil
}

// WriteByte appends a single byte to the chain. It always reports nil.
func (w *Writer) WriteByte(c byte) error {
	last := w.chain[len(w.chain)-1]
	if last.n == len(last.data) {
		w.grow(1)
		last = w.chain[len(w.chain)-1]
	}
	last.data[last.n] = c
	last.n++
	return nil
}

func (w *Writer) grow(nbytes int) {
	// A caller holding buffers is never refused, so the error is always nil.
	c, _ := w.pool.Acquire(context.Background(), len(w.chain), nbytes)
	w.chain = append(w.chain, c...)
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return w.chain.Len() }

// Chain returns the buffers held by w. The Writer retains ownership.
func (w *Writer) Chain() Chain { return w.chain }

// Patch overwrites previously-written bytes starting at offset off with data.
// It panics if the range is outside the written portion of the chain.
func (w *Writer) Patch(off int, data []byte) {
	if off < 0 || off+len(data) > w.Len() {
		panic(fmt.Sprintf("bufpool: patch [%d, %d) out of range", off, off+len(data)))
	}
	for _, b := range w.chain {
		if off >= b.n {
			off -= b.n
			continue
		}
		n := copy(b.data[off:b.n], data)
		data = data[n:]
		off = 0
		if len(data) == 0 {
			return
		}
	}
}

// Truncate discards all but the first n written bytes, returning any buffers
// no longer needed to the pool. The first buffer is always retained.
func (w *Writer) Truncate(n int) {
	if n < 0 || n > w.Len() {
		panic(fmt.Sprintf("bufpool: truncate to %d out of range", n))
	}
	keep := 1
	for i, b := range w.chain {
		if n > b.n {
			n -= b.n
			continue
		}
		b.n = n
		keep = i + 1
		break
	}
	if keep < len(w.chain) {
		w.pool.Release(w.chain[keep:])
		clear(w.chain[keep:])
		w.chain = w.chain[:keep]
	}
}

// Bytes returns a copy of the written data as a single slice.
func (w *Writer) Bytes() []byte {
	out := make([]byte, 0, w.Len())
	for _, b := range w.chain {
		out = append(out, b.Bytes()...)
	}
	return out
}

// WriteTo writes the contents of the chain to dst, using a vectored write
// where dst supports one. It implements [io.WriterTo].
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	bufs := make(net.Buffers, 0, len(w.chain))
	for _, b := range w.chain {
		if b.n != 0 {
			bufs = append(bufs, b.Bytes())
		}
	}
	return bufs.WriteTo(dst)
}

// Release returns all buffers held by w to the pool. After Release, w must
// not be used again. Release is idempotent.
func (w *Writer) Release() {
	if w.chain != nil {
		w.pool.Release(w.chain)
		w.chain = nil
	}
}
