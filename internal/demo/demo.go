// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package demo defines example objects served by orbctl and used in tests.
package demo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/orb"
	"github.com/creachadair/orb/codec"
)

// DateInterface is the interface of a [Date] object.
var DateInterface = orb.NewInterface("Date", 1)

// GetDate reports the current time of a Date in nanoseconds since the epoch.
var GetDate = orb.Define(DateInterface, "getDate", codec.Void, codec.Int64,
	func(ctx context.Context, d *Date, _ struct{}) (int64, error) { return d.Now(), nil })

// A Date is a clock whose readings strictly increase. The zero value is ready
// for use and reads the system clock.
type Date struct {
	// Clock, if set, is used in place of the system clock.
	Clock func() time.Time

	μ    sync.Mutex
	last int64
}

// Now returns the current time in nanoseconds since the epoch, or one more
// than the previous reading if the clock has not advanced.
func (d *Date) Now() int64 {
	now := time.Now
	if d.Clock != nil {
		now = d.Clock
	}
	v := now().UnixNano()

	d.μ.Lock()
	defer d.μ.Unlock()
	if v <= d.last {
		v = d.last + 1
	}
	d.last = v
	return v
}

// ErrRefused is reported by [Echo] for the input "refuse".
var ErrRefused = errors.New("echo refused")

// EchoInterface is the interface of an [Echo] object.
var EchoInterface = orb.NewInterface("Echo", 1).DeclareError("Refused", ErrRefused)

var (
	// EchoString returns its input unchanged, or ErrRefused for "refuse".
	EchoString = orb.Define(EchoInterface, "echo", codec.String, codec.String,
		func(_ context.Context, e *Echo, s string) (string, error) { return e.Echo(s) })

	// EchoWide returns its wide-string input reversed.
	EchoWide = orb.Define(EchoInterface, "reverse", codec.WString, codec.WString,
		func(_ context.Context, e *Echo, s string) (string, error) { return reverse(s), nil })

	// EchoJoin concatenates its inputs with a space between them.
	EchoJoin = orb.Define(EchoInterface, "join", codec.Strings, codec.String,
		func(_ context.Context, e *Echo, ss []string) (string, error) { return strings.Join(ss, " "), nil })

	// EchoCount reports how many calls the object has served.
	EchoCount = orb.Define(EchoInterface, "count", codec.Void, codec.Uint64,
		func(_ context.Context, e *Echo, _ struct{}) (uint64, error) { return e.Count(), nil })
)

// An Echo returns what it is sent. The zero value is ready for use.
type Echo struct {
	μ     sync.Mutex
	calls uint64
}

// Echo returns s, or ErrRefused if s == "refuse".
func (e *Echo) Echo(s string) (string, error) {
	e.μ.Lock()
	defer e.μ.Unlock()
	e.calls++
	if s == "refuse" {
		return "", ErrRefused
	}
	return s, nil
}

// Count reports the number of calls to Echo.
func (e *Echo) Count() uint64 {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.calls
}

func reverse(s string) string {
	rs := []rune(s)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}

// Register registers a Date and an Echo with b under their interface names.
func Register(b *orb.Broker) error {
	if _, err := b.Register("Date", DateInterface, new(Date)); err != nil {
		return err
	}
	_, err := b.Register("Echo", EchoInterface, new(Echo))
	return err
}

// DateClient calls the methods of a Date through a stub.
type DateClient struct{ *orb.Stub }

// GetDate calls the getDate method.
func (c DateClient) GetDate(ctx context.Context) (int64, error) {
	return orb.Invoke(ctx, c.Stub, GetDate, struct{}{})
}

// EchoClient calls the methods of an Echo through a stub.
type EchoClient struct{ *orb.Stub }

// Echo calls the echo method.
func (c EchoClient) Echo(ctx context.Context, s string) (string, error) {
	return orb.Invoke(ctx, c.Stub, EchoString, s)
}

// Reverse calls the reverse method.
func (c EchoClient) Reverse(ctx context.Context, s string) (string, error) {
	return orb.Invoke(ctx, c.Stub, EchoWide, s)
}

// Join calls the join method.
func (c EchoClient) Join(ctx context.Context, ss ...string) (string, error) {
	return orb.Invoke(ctx, c.Stub, EchoJoin, ss)
}

// Count calls the count method.
func (c EchoClient) Count(ctx context.Context) (uint64, error) {
	return orb.Invoke(ctx, c.Stub, EchoCount, struct{}{})
}
