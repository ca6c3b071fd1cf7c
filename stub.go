// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"github.com/creachadair/orb/catalog"
	"github.com/creachadair/orb/objref"
)

// A Stub is a client handle for an object, obtained from [Broker.GetObject].
// Use [Invoke] to call its methods. A Stub is safe for concurrent use.
//
// Stubs are shared: every GetObject for the same reference returns the same
// stub and adds a reference to it. Call Release when done with a stub.
type Stub struct {
	broker  *Broker
	key     objref.Ref // the unresolved name, for the stub cache
	ref     objref.Ref // the resolved reference
	methods catalog.Catalog

	skel *Skeleton   // for a local object
	conn *Connection // for a remote object

	refs int // guarded by the broker lock
}

// Ref returns the resolved reference of s, including the object ID and
// interface of the target.
func (s *Stub) Ref() objref.Ref { return s.ref }

// Local reports whether s refers to an object of its own broker.
func (s *Stub) Local() bool { return s.skel != nil }

// Methods returns the method catalog of the target object.
func (s *Stub) Methods() catalog.Catalog { return s.methods }

// Connection returns the connection used by a remote stub, or nil for a
// local stub.
func (s *Stub) Connection() *Connection { return s.conn }

// Release drops a reference to s. When the last reference is released, the
// stub is removed from the cache of its broker. Calling Release more often
// than GetObject returned s has no further effect.
func (s *Stub) Release() { s.broker.releaseStub(s) }
