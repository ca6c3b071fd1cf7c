// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package orb implements a small object request broker.
//
// A [Broker] holds a table of named objects. Each object implements an
// [Interface], a versioned set of methods with typed parameters and results.
// Callers obtain a [Stub] for an object by its reference and invoke methods
// through it. An object of the same broker is called directly; an object of
// another broker is called over a [Connection] carrying binary frames.
//
// # Interfaces
//
// An interface is defined once, usually as package variables:
//
//	var Date = orb.NewInterface("Date", 1)
//
//	var GetDate = orb.Define(Date, "getDate", codec.Void, codec.Int64,
//	   func(ctx context.Context, c *Clock, _ struct{}) (int64, error) {
//	      return c.Now(), nil
//	   })
//
// Errors that callers should be able to distinguish are declared by name:
//
//	var ErrStopped = errors.New("clock stopped")
//
//	func init() { Date.DeclareError("Stopped", ErrStopped) }
//
// # Objects
//
// To serve an object, register an implementation with the broker:
//
//	b := orb.New(orb.Config{}).Start()
//	defer b.Stop()
//
//	ref, err := b.Register("Date", Date, new(Clock))
//
// To make objects reachable by other brokers, listen on a transport:
//
//	addr, err := b.Listen(ctx, "tcp", "localhost:9000")
//
// # Calls
//
// To call an object, get a stub for its reference and use [Invoke]:
//
//	s, err := b.GetObject(ctx, "tcp://localhost:9000/Date")
//	if err != nil {
//	   log.Fatalf("GetObject: %v", err)
//	}
//	defer s.Release()
//
//	now, err := orb.Invoke(ctx, s, GetDate, struct{}{})
//
// References with the scheme "local" name objects of the calling broker
// itself, for example "local:///Date". Calls to local objects do not encode
// their parameters and do not use any I/O buffers.
//
// Errors reported by a remote object have concrete type [*RemoteError], and
// wrap the matching error of this package, such as [ErrInvalidMethod] or
// [ErrNoObject], or the declared error of the interface.
//
// # Callbacks
//
// A method called by a remote broker can obtain the connection that carried
// the call with [ContextConnection].
//
// # Metrics
//
// Each broker maintains a collection of metrics while running. Use the
// [Broker.Metrics] method to obtain an [expvar.Map] containing them.
package orb
