// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides byte-stream transports for a broker.
//
// A [Transport] dials and listens for connections on one URI scheme. This
// package provides transports for TCP and Unix-domain sockets, and a
// [Network] that connects brokers in memory for testing.
package channel

import (
	"context"
	"io"
	"net"
	"strings"
)

// A Transport opens and accepts byte-stream connections for one scheme.
// The authority is the authority component of an object reference, such as
// "host:port" for TCP.
type Transport interface {
	// Dial opens a connection to the peer named by authority.
	Dial(ctx context.Context, authority string) (io.ReadWriteCloser, error)

	// Listen returns a listener accepting connections at authority.
	Listen(ctx context.Context, authority string) (net.Listener, error)
}

// Direct constructs a connected pair of in-memory byte streams. Data written
// to A is read from B and vice versa. Writes block until the peer reads.
func Direct() (A, B net.Conn) { return net.Pipe() }

// IO constructs a byte stream that reads from r and writes to wc. Closing
// the stream closes wc.
func IO(r io.Reader, wc io.WriteCloser) io.ReadWriteCloser {
	return ioStream{Reader: r, WriteCloser: wc}
}

type ioStream struct {
	io.Reader
	io.WriteCloser
}

// SplitAddress parses an address string to guess a network type and target.
//
// The assignment of a network type uses the following heuristics:
//
// If s does not have the form [host]:port, the network is assigned as "unix".
// The network "unix" is also assigned if port == "", port contains characters
// other than ASCII letters, digits, and "-", or if host contains a "/".
//
// Otherwise, the network is assigned as "tcp". Note that this function does
// not verify whether the address is lexically valid.
func SplitAddress(s string) (network, address string) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "unix", s
	}
	host, port := s[:i], s[i+1:]
	if port == "" || !isServiceName(port) {
		return "unix", s
	} else if strings.IndexByte(host, '/') >= 0 {
		return "unix", s
	}
	return "tcp", s
}

// isServiceName reports whether s looks like a legal service name from the
// services(5) file. The grammar of such names is not well-defined, but for our
// purposes it includes letters, digits, and "-".
func isServiceName(s string) bool {
	for _, b := range s {
		if b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b == '-' {
			continue
		}
		return false
	}
	return true
}
