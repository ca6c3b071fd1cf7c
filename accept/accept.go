// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package accept provides accept loops that feed inbound byte streams to a
// broker.
package accept

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/creachadair/taskgroup"
)

// An Accepter accepts inbound byte streams.
type Accepter interface {
	Accept(context.Context) (io.ReadWriteCloser, error)
}

// A Session is the running state attached to one accepted stream.
type Session interface {
	// Close shuts down the session.
	Close() error

	// Done returns a channel that is closed when the session has ended.
	Done() <-chan struct{}
}

// Loop accepts streams from acc and passes each one to attach, which takes
// ownership of the stream. Loop continues until acc closes or ctx ends.
//
// When ctx terminates, all running sessions are closed. When acc closes, the
// loop waits for running sessions to end before returning.
func Loop(ctx context.Context, acc Accepter, attach func(io.ReadWriteCloser) Session) error {
	g := taskgroup.New(nil)
	for {
		rwc, err := acc.Accept(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			g.Wait()
			return err
		}

		s := attach(rwc)
		g.Go(func() error {
			select {
			case <-ctx.Done():
				s.Close()
				<-s.Done()
			case <-s.Done():
			}
			return nil
		})
	}
}

// NetAccepter adapts a net.Listener to the Accepter interface.
func NetAccepter(lst net.Listener) Accepter {
	return netAccepter{Listener: lst}
}

type netAccepter struct {
	net.Listener
}

func (n netAccepter) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to clean
	// up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.Listener.Close()
		case <-ok:
			// release the waiter
		}
		return nil
	})

	conn, err := n.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}
