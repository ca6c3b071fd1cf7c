// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
)

// A Network is an in-memory [Transport]. Listeners are named by arbitrary
// authority strings, and each dialed connection is a synchronous pipe as
// returned by [Direct]. The zero value is ready for use.
type Network struct {
	μ         sync.Mutex
	listeners map[string]*pipeListener
}

// NewNetwork constructs a new empty in-memory network.
func NewNetwork() *Network { return new(Network) }

// Listen implements part of [Transport]. It reports an error if authority
// already has an open listener.
func (n *Network) Listen(_ context.Context, authority string) (net.Listener, error) {
	n.μ.Lock()
	defer n.μ.Unlock()
	if _, ok := n.listeners[authority]; ok {
		return nil, fmt.Errorf("listen %q: address already in use", authority)
	}
	if n.listeners == nil {
		n.listeners = make(map[string]*pipeListener)
	}
	lst := &pipeListener{
		net:   n,
		addr:  pipeAddr(authority),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	n.listeners[authority] = lst
	return lst, nil
}

// Dial implements part of [Transport]. It blocks until the listener for
// authority accepts the connection, or ctx ends.
func (n *Network) Dial(ctx context.Context, authority string) (io.ReadWriteCloser, error) {
	n.μ.Lock()
	lst, ok := n.listeners[authority]
	n.μ.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %q: connection refused", authority)
	}

	client, server := Direct()
	select {
	case lst.conns <- server:
		return client, nil
	case <-lst.done:
		return nil, fmt.Errorf("dial %q: %w", authority, net.ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("dial %q: %w", authority, ctx.Err())
	}
}

func (n *Network) remove(lst *pipeListener) {
	n.μ.Lock()
	defer n.μ.Unlock()
	if n.listeners[string(lst.addr)] == lst {
		delete(n.listeners, string(lst.addr))
	}
}

type pipeListener struct {
	net   *Network
	addr  pipeAddr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (p *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.done:
		return nil, net.ErrClosed
	}
}

func (p *pipeListener) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.net.remove(p)
	})
	return nil
}

func (p *pipeListener) Addr() net.Addr { return p.addr }

type pipeAddr string

func (pipeAddr) Network() string  { return "pipe" }
func (a pipeAddr) String() string { return string(a) }
