// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"context"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"
)

// TCP returns a [Transport] for TCP connections. The authority is a
// "host:port" address.
//
// If userTimeout > 0, sockets are configured so that data left
// unacknowledged by the peer for that long fails the connection, where the
// platform supports it. Without this, a write to a vanished peer can succeed
// locally while the call waits for its deadline.
func TCP(userTimeout time.Duration) Transport { return netTransport{network: "tcp", timeout: userTimeout} }

// Unix returns a [Transport] for Unix-domain sockets. The authority is the
// path-escaped socket path, for example "%2Ftmp%2Forb.sock" for the socket
// "/tmp/orb.sock".
func Unix() Transport { return netTransport{network: "unix"} }

type netTransport struct {
	network string
	timeout time.Duration
}

func (t netTransport) address(authority string) (string, error) {
	if t.network == "unix" {
		return url.PathUnescape(authority)
	}
	return authority, nil
}

func (t netTransport) control(_, _ string, c syscall.RawConn) error {
	if t.network != "tcp" || t.timeout <= 0 {
		return nil
	}
	return setUserTimeout(c, t.timeout)
}

// Dial implements part of [Transport].
func (t netTransport) Dial(ctx context.Context, authority string) (io.ReadWriteCloser, error) {
	addr, err := t.address(authority)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Control: t.control}
	conn, err := d.DialContext(ctx, t.network, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Listen implements part of [Transport].
func (t netTransport) Listen(ctx context.Context, authority string) (net.Listener, error) {
	addr, err := t.address(authority)
	if err != nil {
		return nil, err
	}
	lc := net.ListenConfig{Control: t.control}
	return lc.Listen(ctx, t.network, addr)
}
