// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package orb_test

import (
	"context"
	"testing"

	"github.com/creachadair/orb"
	"github.com/creachadair/orb/channel"
	"github.com/creachadair/orb/internal/demo"
)

func BenchmarkCall(b *testing.B) {
	const payload = "fuzzy wuzzy was a bear\nfuzzy wuzzy had no hair\nfuzzy wuzzy wasn't fuzzy was he?"

	b.Run("Local-noop", func(b *testing.B) {
		runBench(b, localStub(b), "")
	})
	b.Run("Local-echo", func(b *testing.B) {
		runBench(b, localStub(b), payload)
	})

	b.Run("Pipe-noop", func(b *testing.B) {
		runBench(b, pipeStub(b), "")
	})
	b.Run("Pipe-echo", func(b *testing.B) {
		runBench(b, pipeStub(b), payload)
	})
}

func runBench(b *testing.B, s *orb.Stub, data string) {
	b.Helper()
	ctx := context.Background()
	cli := demo.EchoClient{Stub: s}

	for b.Loop() {
		_, err := cli.Echo(ctx, data)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func localStub(tb testing.TB) *orb.Stub {
	br := orb.New(orb.Config{Logger: quiet}).Start()
	tb.Cleanup(func() {
		if err := br.Stop(); err != nil {
			tb.Errorf("Stop: %v", err)
		}
	})
	if err := demo.Register(br); err != nil {
		tb.Fatalf("Register: %v", err)
	}
	s, err := br.GetObject(context.Background(), "local:///Echo")
	if err != nil {
		tb.Fatalf("GetObject: %v", err)
	}
	return s
}

func pipeStub(tb testing.TB) *orb.Stub {
	network := channel.NewNetwork()
	srv := orb.New(orb.Config{Logger: quiet}).Start()
	cli := orb.New(orb.Config{Logger: quiet}).Start()
	tb.Cleanup(func() {
		if err := cli.Stop(); err != nil {
			tb.Errorf("Client stop: %v", err)
		}
		if err := srv.Stop(); err != nil {
			tb.Errorf("Server stop: %v", err)
		}
	})
	srv.RegisterScheme("pipe", network)
	cli.RegisterScheme("pipe", network)
	if err := demo.Register(srv); err != nil {
		tb.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	addr, err := srv.Listen(ctx, "pipe", "bench")
	if err != nil {
		tb.Fatalf("Listen: %v", err)
	}
	s, err := cli.GetObject(ctx, addr+"/Echo")
	if err != nil {
		tb.Fatalf("GetObject: %v", err)
	}
	return s
}
