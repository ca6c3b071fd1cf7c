// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package objref defines object references, the identities that name local
// and remote objects in a broker.
//
// The textual form of a reference is
//
//	<scheme>://<authority>/<path>
//
// for example "local:///Date" or "tcp://localhost:9000/Date". The scheme
// selects a transport, the authority names the peer reachable through that
// transport, and the path is the name the object was registered under.
package objref

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is reported by [Parse] for malformed references.
var ErrInvalid = errors.New("invalid object reference")

// A Ref is an immutable object reference. Refs are comparable, and equality
// covers all fields, so a Ref may be used directly as a map key.
//
// A Ref produced by [Parse] carries only the scheme, authority and path.
// The object ID and interface fields are filled in by resolution.
type Ref struct {
	Scheme    string
	Authority string
	Path      string

	ObjectID  uint32
	Interface string
	Version   uint32
}

// Parse parses a reference in the form <scheme>://<authority>/<path>.
// The scheme and path must be non-empty; the authority may be empty.
func Parse(uri string) (Ref, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q: missing scheme separator", ErrInvalid, uri)
	} else if !validScheme(scheme) {
		return Ref{}, fmt.Errorf("%w: %q: invalid scheme %q", ErrInvalid, uri, scheme)
	}
	authority, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return Ref{}, fmt.Errorf("%w: %q: missing object path", ErrInvalid, uri)
	}
	return Ref{Scheme: scheme, Authority: authority, Path: path}, nil
}

// MustParse is as [Parse], but panics on error.
func MustParse(uri string) Ref {
	r, err := Parse(uri)
	if err != nil {
		panic(err)
	}
	return r
}

// validScheme reports whether s is a URI scheme: a letter followed by letters,
// digits, "+", "-" or ".".
func validScheme(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// String renders r in the same textual form accepted by [Parse].
func (r Ref) String() string { return r.Scheme + "://" + r.Authority + "/" + r.Path }

// Key returns the scheme and authority of r, which together name the
// connection needed to reach the object.
func (r Ref) Key() string { return r.Scheme + "://" + r.Authority }

// Name returns r with only its textual fields, discarding resolution results.
func (r Ref) Name() Ref { return Ref{Scheme: r.Scheme, Authority: r.Authority, Path: r.Path} }
