// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package bufpool_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/orb/bufpool"
	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"
)

func TestAcquireRelease(t *testing.T) {
	p := bufpool.New(bufpool.Config{Size: 16, Capacity: 4})

	c, err := p.Acquire(context.Background(), 0, 40)
	if err != nil {
		t.Fatalf("Acquire: unexpected error: %v", err)
	}
	if len(c) != 3 {
		t.Errorf("Acquire 40 bytes: got %d buffers, want 3", len(c))
	}
	for i, b := range c {
		if b.Cap() != 16 || b.Len() != 0 {
			t.Errorf("Buffer %d: cap %d len %d, want 16, 0", i, b.Cap(), b.Len())
		}
	}
	if diff := cmp.Diff(p.Stats(), bufpool.Stats{Live: 3, Held: 3, Allocated: 3}); diff != "" {
		t.Errorf("Stats after acquire (-got, +want):\n%s", diff)
	}

	p.Release(c)
	if diff := cmp.Diff(p.Stats(), bufpool.Stats{Live: 3, Free: 3, Allocated: 3}); diff != "" {
		t.Errorf("Stats after release (-got, +want):\n%s", diff)
	}

	// Released buffers are reused before any new allocation.
	c2, err := p.Acquire(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("Acquire: unexpected error: %v", err)
	}
	if got := p.Stats().Allocated; got != 3 {
		t.Errorf("Allocated after reuse: got %d, want 3", got)
	}
	p.Release(c2)

	t.Run("DoubleRelease", func(t *testing.T) {
		mtest.MustPanic(t, func() { p.Release(c2) })
	})
	t.Run("TooLarge", func(t *testing.T) {
		_, err := p.Acquire(context.Background(), 0, 16*5)
		if !errors.Is(err, bufpool.ErrExhausted) {
			t.Errorf("Acquire beyond capacity: got %v, want %v", err, bufpool.ErrExhausted)
		}
	})
}

func TestBlocking(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := bufpool.New(bufpool.Config{Size: 8, Capacity: 2})
		ctx := context.Background()

		held, err := p.Acquire(ctx, 0, 16)
		if err != nil {
			t.Fatalf("Acquire: unexpected error: %v", err)
		}

		// A caller holding nothing waits, and gives up when its context ends.
		tctx, cancel := context.WithTimeout(ctx, time.Second)
		_, err = p.Acquire(tctx, 0, 1)
		cancel()
		if !errors.Is(err, bufpool.ErrExhausted) {
			t.Errorf("Acquire at capacity: got %v, want %v", err, bufpool.ErrExhausted)
		}

		// A caller already holding a buffer is never refused.
		extra, err := p.Acquire(ctx, 1, 8)
		if err != nil {
			t.Fatalf("Acquire holding=1: unexpected error: %v", err)
		}
		if st := p.Stats(); st.Held != 3 || st.Live != 3 {
			t.Errorf("Stats after overflow: got %+v, want 3 held, 3 live", st)
		}

		// A blocked caller proceeds once buffers are released.
		got := make(chan bufpool.Chain, 1)
		go func() {
			c, err := p.Acquire(ctx, 0, 1)
			if err != nil {
				t.Errorf("Blocked Acquire: unexpected error: %v", err)
			}
			got <- c
		}()
		synctest.Wait()
		select {
		case <-got:
			t.Fatal("Acquire did not block at capacity")
		default:
		}

		// Releasing the overflow buffer does not free a slot.
		p.Release(extra)
		synctest.Wait()
		select {
		case <-got:
			t.Fatal("Acquire unblocked by an overflow release")
		default:
		}

		p.Release(held)
		c := <-got
		p.Release(c)

		if st := p.Stats(); st.Held != 0 || st.Live > 2 {
			t.Errorf("Stats at exit: got %+v, want 0 held, at most 2 live", st)
		}
	})
}

func TestTrimOutsideBound(t *testing.T) {
	p := bufpool.New(bufpool.Config{Size: 4, Capacity: 3})
	ctx := context.Background()

	a, _ := p.Acquire(ctx, 0, 12)
	b, _ := p.Acquire(ctx, 3, 20) // overflow: 5 more
	if st := p.Stats(); st.Live != 8 {
		t.Fatalf("Live after overflow: got %d, want 8", st.Live)
	}

	p.Release(a)
	if st := p.Stats(); st.Free != 0 || st.Destroyed != 3 {
		t.Errorf("After first release: got %+v, want 0 free, 3 destroyed", st)
	}
	p.Release(b)
	if diff := cmp.Diff(p.Stats(), bufpool.Stats{
		Live: 3, Free: 3, Allocated: 8, Destroyed: 5,
	}); diff != "" {
		t.Errorf("Stats after release (-got, +want):\n%s", diff)
	}
}

// For any interleaving of acquire and release, the number of live buffers
// never exceeds max(capacity, held).
func TestLiveBound(t *testing.T) {
	const capacity = 6
	p := bufpool.New(bufpool.Config{Size: 8, Capacity: capacity})

	var μ sync.Mutex
	var violations []bufpool.Stats
	check := func() {
		st := p.Stats()
		if st.Live > max(capacity, st.Held) || st.Live != st.Held+st.Free {
			μ.Lock()
			violations = append(violations, st)
			μ.Unlock()
		}
	}

	g := taskgroup.New(nil)
	for range 8 {
		g.Go(func() error {
			ctx := context.Background()
			var mine bufpool.Chain
			for range 500 {
				if len(mine) != 0 && rand.IntN(3) == 0 {
					k := rand.IntN(len(mine)) + 1
					p.Release(mine[:k])
					mine = append(bufpool.Chain(nil), mine[k:]...)
				} else {
					c, err := p.Acquire(ctx, len(mine), rand.IntN(30)+1)
					if err != nil {
						return err
					}
					mine = append(mine, c...)
				}
				check()
			}
			p.Release(mine)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Worker failed: %v", err)
	}
	check()
	for _, v := range violations {
		t.Errorf("Bound violated: %+v", v)
	}
	if st := p.Stats(); st.Held != 0 || st.Live > capacity {
		t.Errorf("Stats at exit: %+v", st)
	}
}

func TestWriter(t *testing.T) {
	p := bufpool.New(bufpool.Config{Size: 8, Capacity: 4})
	w, err := bufpool.NewWriter(context.Background(), p)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	w.Write([]byte("0123"))
	w.WriteByte('4')
	w.Write([]byte("56789abcdefghij"))
	const want = "0123456789abcdefghij"
	if got := string(w.Bytes()); got != want {
		t.Errorf("Bytes: got %q, want %q", got, want)
	}
	if n := len(w.Chain()); n != 3 {
		t.Errorf("Chain length: got %d, want 3", n)
	}

	w.Patch(6, []byte("XYZ")) // spans the first buffer boundary
	if got, want := string(w.Bytes()), "012345XYZ9abcdefghij"; got != want {
		t.Errorf("Patch: got %q, want %q", got, want)
	}
	mtest.MustPanic(t, func() { w.Patch(18, []byte("xyz")) })

	var buf bytes.Buffer
	if n, err := w.WriteTo(&buf); err != nil || n != 20 {
		t.Errorf("WriteTo: got (%d, %v), want (20, nil)", n, err)
	}
	if got := buf.String(); got != string(w.Bytes()) {
		t.Errorf("WriteTo: wrote %q, want %q", got, w.Bytes())
	}

	w.Truncate(10)
	if got, want := string(w.Bytes()), "012345XYZ9"; got != want {
		t.Errorf("Truncate: got %q, want %q", got, want)
	}
	if n := len(w.Chain()); n != 2 {
		t.Errorf("Chain length after truncate: got %d, want 2", n)
	}
	if st := p.Stats(); st.Held != 2 {
		t.Errorf("Held after truncate: got %d, want 2", st.Held)
	}

	w.Write([]byte("!"))
	if got, want := string(w.Bytes()), "012345XYZ9!"; got != want {
		t.Errorf("Write after truncate: got %q, want %q", got, want)
	}

	w.Truncate(0)
	if w.Len() != 0 || len(w.Chain()) != 1 {
		t.Errorf("Truncate(0): len %d, %d buffers; want 0, 1", w.Len(), len(w.Chain()))
	}

	w.Release()
	w.Release() // idempotent
	if st := p.Stats(); st.Held != 0 {
		t.Errorf("Held after release: got %d, want 0", st.Held)
	}
}
