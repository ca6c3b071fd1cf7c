// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/orb/catalog"
	"github.com/creachadair/orb/codec"
)

// An Interface describes the methods and declared errors of a kind of
// object. Define all methods and errors of an interface before registering
// any object that implements it; thereafter an Interface is read-only and
// safe for concurrent use.
type Interface struct {
	name    string
	version uint32
	methods catalog.Catalog
	ops     map[uint32]operation
	errs    []declaredError
}

type declaredError struct {
	name string
	err  error
}

// NewInterface constructs an empty interface with the given name and version.
func NewInterface(name string, version uint32) *Interface {
	return &Interface{
		name:    name,
		version: version,
		methods: catalog.New(),
		ops:     make(map[uint32]operation),
	}
}

// Name reports the name of the interface.
func (i *Interface) Name() string { return i.name }

// Version reports the version of the interface.
func (i *Interface) Version() uint32 { return i.version }

// Catalog returns the method catalog of the interface.
func (i *Interface) Catalog() catalog.Catalog { return i.methods }

// DeclareError adds err to the errors reported to remote callers by name.
// A method error matching err (per errors.Is) is reported as name, and the
// caller receives an error wrapping err. DeclareError returns i to permit
// chaining. It panics if name is empty or already declared.
func (i *Interface) DeclareError(name string, err error) *Interface {
	if name == "" || err == nil {
		panic("orb: invalid declared error")
	}
	if i.errorNamed(name) != nil {
		panic(fmt.Sprintf("orb: duplicate error name %q in %s", name, i.name))
	}
	i.errs = append(i.errs, declaredError{name: name, err: err})
	return i
}

// errorName returns the declared name of err, or "".
func (i *Interface) errorName(err error) string {
	for _, d := range i.errs {
		if errors.Is(err, d.err) {
			return d.name
		}
	}
	return ""
}

// errorNamed returns the declared error with the given name, or nil.
func (i *Interface) errorNamed(name string) error {
	for _, d := range i.errs {
		if d.name == name {
			return d.err
		}
	}
	return nil
}

// implementedBy reports whether every method of i accepts impl.
func (i *Interface) implementedBy(impl any) error {
	for id, op := range i.ops {
		if !op.accepts(impl) {
			return fmt.Errorf("%T does not implement %s (method %d)", impl, i.name, id)
		}
	}
	return nil
}

// An operation is the untyped view of a Method used by a skeleton.
type operation interface {
	// accepts reports whether impl has the receiver type of the method.
	accepts(impl any) bool

	// serve decodes parameters from dec, calls the method on impl, and writes
	// the result to enc.
	serve(ctx context.Context, impl any, dec codec.Decoder, enc codec.Encoder) error
}

// A Method is a method of an Interface, implemented by a function whose
// receiver has type T, with parameter type P and result type R.
type Method[T, P, R any] struct {
	iface  *Interface
	name   string
	id     uint32
	params codec.Value[P]
	result codec.Value[R]
	fn     func(context.Context, T, P) (R, error)
}

// Define adds a method to iface with the given name, parameter and result
// value codecs, and implementation. The method ID is assigned once, in order
// of definition. Define panics if name is already defined in iface.
//
// Example:
//
//	var Date = orb.NewInterface("Date", 1)
//	var GetDate = orb.Define(Date, "getDate", codec.Void, codec.Int64,
//	   func(ctx context.Context, d *Clock, _ struct{}) (int64, error) {
//	      return d.Now(), nil
//	   })
func Define[T, P, R any](iface *Interface, name string, params codec.Value[P], result codec.Value[R], fn func(context.Context, T, P) (R, error)) *Method[T, P, R] {
	if _, ok := iface.methods.Find(name); ok {
		panic(fmt.Sprintf("orb: duplicate method %q in %s", name, iface.name))
	}
	iface.methods.Add(name)
	m := &Method[T, P, R]{
		iface:  iface,
		name:   name,
		id:     iface.methods.Lookup(name),
		params: params,
		result: result,
		fn:     fn,
	}
	iface.ops[m.id] = m
	return m
}

// Name reports the name of the method.
func (m *Method[T, P, R]) Name() string { return m.name }

// Interface reports the interface that defines m.
func (m *Method[T, P, R]) Interface() *Interface { return m.iface }

func (m *Method[T, P, R]) accepts(impl any) bool { _, ok := impl.(T); return ok }

func (m *Method[T, P, R]) serve(ctx context.Context, impl any, dec codec.Decoder, enc codec.Encoder) error {
	p, err := m.params.Get(dec)
	if err != nil {
		return fmt.Errorf("method %q parameters: %w", m.name, err)
	}
	r, err := m.call(ctx, impl, p)
	if err != nil {
		return err
	}
	m.result.Put(enc, r)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("method %q result: %w", m.name, err)
	}
	return nil
}

// call invokes the implementation of m on impl, recovering from a panic.
func (m *Method[T, P, R]) call(ctx context.Context, impl any, p P) (_ R, err error) {
	var zero R
	t, ok := impl.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T does not implement %q", ErrInvalidMethod, impl, m.name)
	}

	// Ensure a panic out of a method is reported as an error of the call.
	defer func() {
		if x := recover(); x != nil && err == nil {
			err = fmt.Errorf("method %q panicked (recovered): %v", m.name, x)
		}
	}()
	return m.fn(ctx, t, p)
}

// Invoke calls method m of the object referenced by s with parameters p.
//
// The method is looked up by name in the catalog of s. If it is not found,
// or m belongs to a different interface, Invoke reports ErrInvalidMethod
// without contacting the object. A local stub calls the implementation
// directly, without encoding p. A remote stub encodes p, sends the request,
// and waits for the result.
//
// Errors from a remote object have concrete type *RemoteError, and wrap the
// matching error of this package or a declared error of the interface.
func Invoke[T, P, R any](ctx context.Context, s *Stub, m *Method[T, P, R], p P) (R, error) {
	var zero R
	id, ok := s.methods.Find(m.name)
	if !ok || s.ref.Interface != m.iface.name {
		return zero, fmt.Errorf("%w: %q on %s", ErrInvalidMethod, m.name, s.ref.Interface)
	}

	if s.skel != nil {
		if !s.skel.live.Load() {
			return zero, fmt.Errorf("%w: %q", ErrNoObject, s.ref.Path)
		}
		op, ok := s.skel.iface.ops[id].(*Method[T, P, R])
		if !ok {
			return zero, fmt.Errorf("%w: %q on %s", ErrInvalidMethod, m.name, s.ref.Interface)
		}
		return op.call(ctx, s.skel.impl, p)
	}

	payload, err := s.conn.call(ctx, KindRequest, s.ref.ObjectID, id, m.iface, func(enc codec.Encoder) {
		m.params.Put(enc, p)
	})
	if err != nil {
		return zero, err
	}
	r, err := m.result.Get(s.conn.factory.NewDecoder(payload))
	if err != nil {
		return zero, fmt.Errorf("method %q result: %w", m.name, err)
	}
	return r, nil
}
