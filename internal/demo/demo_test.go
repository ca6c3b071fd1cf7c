// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package demo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creachadair/orb"
	"github.com/creachadair/orb/internal/demo"
	"github.com/fortytw2/leaktest"
)

func TestDateIncreases(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	d := &demo.Date{Clock: func() time.Time { return fixed }}

	prev := d.Now()
	for range 100 {
		next := d.Now()
		if next <= prev {
			t.Fatalf("Now: got %d after %d, want increasing", next, prev)
		}
		prev = next
	}
}

func TestLocal(t *testing.T) {
	defer leaktest.Check(t)()

	b := orb.New(orb.Config{}).Start()
	defer b.Stop()
	if err := demo.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()

	es, err := b.GetObject(ctx, "local:///Echo")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer es.Release()
	echo := demo.EchoClient{Stub: es}

	if got, err := echo.Echo(ctx, "hello"); err != nil || got != "hello" {
		t.Errorf("Echo: got (%q, %v), want hello", got, err)
	}
	if got, err := echo.Reverse(ctx, "añb"); err != nil || got != "bña" {
		t.Errorf("Reverse: got (%q, %v), want bña", got, err)
	}
	if got, err := echo.Join(ctx, "a", "b", "c"); err != nil || got != "a b c" {
		t.Errorf("Join: got (%q, %v), want a b c", got, err)
	}
	if _, err := echo.Echo(ctx, "refuse"); !errors.Is(err, demo.ErrRefused) {
		t.Errorf("Echo refuse: got %v, want %v", err, demo.ErrRefused)
	}
	if n, err := echo.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count: got (%d, %v), want 2", n, err)
	}

	ds, err := b.GetObject(ctx, "local://"+b.ID()+"/Date")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer ds.Release()
	date := demo.DateClient{Stub: ds}
	a, err := date.GetDate(ctx)
	if err != nil {
		t.Fatalf("GetDate: %v", err)
	}
	if c, err := date.GetDate(ctx); err != nil || c <= a {
		t.Errorf("GetDate: got (%d, %v), want > %d", c, err, a)
	}
}
