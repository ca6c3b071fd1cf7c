// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/creachadair/orb/codec"
	"github.com/creachadair/orb/objref"
)

// A Skeleton binds a registered object to its implementation. The broker
// dispatches inbound requests for the object through its skeleton.
type Skeleton struct {
	id    uint32
	name  string
	iface *Interface
	impl  any
	live  atomic.Bool // cleared when the object is unregistered

	stubs int // active local stubs; guarded by the broker lock
}

func newSkeleton(id uint32, name string, iface *Interface, impl any) *Skeleton {
	s := &Skeleton{id: id, name: name, iface: iface, impl: impl}
	s.live.Store(true)
	return s
}

// ID reports the object ID of s within its broker.
func (s *Skeleton) ID() uint32 { return s.id }

// Name reports the registered name of s.
func (s *Skeleton) Name() string { return s.name }

// Interface reports the interface implemented by s.
func (s *Skeleton) Interface() *Interface { return s.iface }

// ref returns a reference to s with the given scheme and authority.
func (s *Skeleton) ref(scheme, authority string) objref.Ref {
	return objref.Ref{
		Scheme:    scheme,
		Authority: authority,
		Path:      s.name,
		ObjectID:  s.id,
		Interface: s.iface.name,
		Version:   s.iface.version,
	}
}

// Dispatch decodes the parameters of method methodID from dec, calls the
// method, and encodes its result to enc. It reports ErrInvalidMethod if the
// interface does not define methodID, and an error wrapping codec.ErrDecode
// if the parameters are malformed. A panic in the method is reported as an
// error.
func (s *Skeleton) Dispatch(ctx context.Context, methodID uint32, dec codec.Decoder, enc codec.Encoder) error {
	if !s.live.Load() {
		return fmt.Errorf("%w: %q", ErrNoObject, s.name)
	}
	op, ok := s.iface.ops[methodID]
	if !ok {
		return fmt.Errorf("%w: method %d of %s", ErrInvalidMethod, methodID, s.iface.name)
	}
	return op.serve(ctx, s.impl, dec, enc)
}
