// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program orbctl is a command-line utility for serving and calling ORB objects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/orb"
	"github.com/creachadair/orb/channel"
	"github.com/creachadair/orb/internal/demo"
	"github.com/creachadair/orb/threadpool"
)

var serveFlags struct {
	Listen      string        `flag:"listen,default=localhost:7420,Comma-separated listen addresses"`
	Workers     int           `flag:"workers,default=4,Number of worker goroutines"`
	Jobs        int           `flag:"jobs,Maximum pending requests (0 means unbounded)"`
	IdleTimeout time.Duration `flag:"idle-timeout,Close connections idle for this long"`
	LogFrames   bool          `flag:"log-frames,Log every frame sent and received"`
	Stdio       bool          `flag:"stdio,Also serve one connection on stdin and stdout"`
	Verbose     bool          `flag:"v,Enable verbose logging"`
}

var callFlags struct {
	Timeout  time.Duration `flag:"timeout,default=5s,Call timeout"`
	Encoding string        `flag:"encoding,Preferred encoding (fixed-be or fixed-le)"`
	Verbose  bool          `flag:"v,Enable verbose logging"`
}

var pingFlags struct {
	Count    int           `flag:"n,default=1,Number of pings to send"`
	Interval time.Duration `flag:"interval,default=1s,Delay between pings"`
	Timeout  time.Duration `flag:"timeout,default=5s,Timeout per ping"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Utilities for serving and calling ORB objects.

Addresses are either host:port (TCP) or the path of a Unix-domain socket.`,
		Commands: []*command.C{
			{
				Name:  "serve",
				Usage: "[--listen addr,...] [--stdio]",
				Help: `Serve the demo objects until interrupted.

The broker registers a "Date" object (method getDate) and an "Echo" object
(methods echo, reverse, join, count), and listens at each address given.`,
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &serveFlags) },
				Run:      runServe,
			},
			{
				Name:  "call",
				Usage: "<addr> <object> <method> [<arg>...]",
				Help: `Call a method of a demo object served at the given address.

Supported methods:

  Date getDate
  Echo echo <string>
  Echo reverse <string>
  Echo join <string>...
  Echo count`,
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &callFlags) },
				Run:      runCall,
			},
			{
				Name:     "ping",
				Usage:    "<addr>",
				Help:     "Check that a broker is reachable and report round-trip times.",
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &pingFlags) },
				Run:      runPing,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// splitAddr returns the scheme and authority for a command-line address.
func splitAddr(addr string) (scheme, authority string) {
	scheme, authority = channel.SplitAddress(addr)
	if scheme == "unix" {
		authority = url.PathEscape(authority)
	}
	return scheme, authority
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments after command")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := newLogger(serveFlags.Verbose)
	cfg := orb.Config{
		Workers:     serveFlags.Workers,
		IdleTimeout: serveFlags.IdleTimeout,
		Logger:      log,
	}
	if serveFlags.Jobs > 0 {
		cfg.Jobs = threadpool.Bounded(serveFlags.Jobs)
	}
	b := orb.New(cfg)
	if serveFlags.LogFrames {
		b.LogFrames(func(fi orb.FrameInfo) { log.Info("frame", "info", fi.String()) })
	}
	if err := demo.Register(b); err != nil {
		return err
	}
	b.Start()

	for _, addr := range strings.Split(serveFlags.Listen, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		scheme, authority := channel.SplitAddress(addr)
		key, err := b.Listen(ctx, scheme, authority)
		if err != nil {
			b.Stop()
			return err
		}
		fmt.Fprintf(os.Stderr, "serving at %s (broker %s)\n", key, b.ID())
	}

	// A stdio connection lets a parent process dial the broker over a pipe.
	// The server exits when the parent closes it.
	var stdio <-chan struct{}
	if serveFlags.Stdio {
		stdio = b.Attach(channel.IO(os.Stdin, os.Stdout)).Done()
	}

	select {
	case <-ctx.Done():
		if serveFlags.Stdio {
			// The reader may be blocked on stdin, which cannot be interrupted.
			// Close what we can and exit without waiting for it.
			go b.Stop()
			fmt.Fprintln(os.Stderr, "interrupted")
			return nil
		}
	case <-stdio:
	}
	fmt.Fprintln(os.Stderr, "stopping")
	return b.Stop()
}

func runCall(env *command.Env) error {
	if len(env.Args) < 3 {
		return env.Usagef("missing address, object, or method name")
	}
	addr, object, method, args := env.Args[0], env.Args[1], env.Args[2], env.Args[3:]

	cfg := orb.Config{Logger: newLogger(callFlags.Verbose)}
	if callFlags.Encoding != "" {
		cfg.Encodings = []string{callFlags.Encoding}
	}
	b := orb.New(cfg).Start()
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), callFlags.Timeout)
	defer cancel()

	scheme, authority := splitAddr(addr)
	s, err := b.GetObject(ctx, scheme+"://"+authority+"/"+object)
	if err != nil {
		return err
	}
	defer s.Release()

	out, err := callMethod(ctx, s, method, args)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

var errArgs = errors.New("wrong number of arguments")

func callMethod(ctx context.Context, s *orb.Stub, method string, args []string) (string, error) {
	ref := s.Ref()
	if _, ok := s.Methods().Find(method); !ok {
		return "", fmt.Errorf("%s (%s v%d) has no method %q (have %s)",
			ref.Path, ref.Interface, ref.Version, method, strings.Join(s.Methods().Names(), ", "))
	}
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: %w (got %d, want %d)", method, errArgs, len(args), n)
		}
		return nil
	}

	switch ref.Interface + "." + method {
	case "Date.getDate":
		if err := need(0); err != nil {
			return "", err
		}
		v, err := demo.DateClient{Stub: s}.GetDate(ctx)
		if err != nil {
			return "", err
		}
		return time.Unix(0, v).Format(time.RFC3339Nano), nil

	case "Echo.echo", "Echo.reverse":
		if err := need(1); err != nil {
			return "", err
		}
		cli := demo.EchoClient{Stub: s}
		if method == "echo" {
			return cli.Echo(ctx, args[0])
		}
		return cli.Reverse(ctx, args[0])

	case "Echo.join":
		return demo.EchoClient{Stub: s}.Join(ctx, args...)

	case "Echo.count":
		if err := need(0); err != nil {
			return "", err
		}
		n, err := demo.EchoClient{Stub: s}.Count(ctx)
		return strconv.FormatUint(n, 10), err
	}
	return "", fmt.Errorf("don't know how to call %s.%s", ref.Interface, method)
}

func runPing(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("missing address")
	}
	b := orb.New(orb.Config{Logger: newLogger(false)}).Start()
	defer b.Stop()

	scheme, authority := splitAddr(env.Args[0])
	for i := range pingFlags.Count {
		if i > 0 {
			time.Sleep(pingFlags.Interval)
		}
		ctx, cancel := context.WithTimeout(context.Background(), pingFlags.Timeout)
		rtt, err := b.Ping(ctx, scheme, authority)
		cancel()
		if err != nil {
			return fmt.Errorf("ping %s://%s: %w", scheme, authority, err)
		}
		fmt.Printf("%s://%s: %v\n", scheme, authority, rtt)
	}
	return nil
}
