// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/orb/bufpool"
	"github.com/creachadair/orb/codec"
	"github.com/creachadair/orb/mux"
	"github.com/creachadair/orb/packet"
	"github.com/eapache/queue"
)

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	StateConnecting ConnState = iota // Handshake in progress
	StateOpen                        // Ready for calls
	StateClosing                     // Failed or closed, cleanup in progress
	StateClosed                      // Terminal
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE:%d", int32(s))
	}
}

// A Connection is a byte stream to another broker, carrying calls in both
// directions. Connections are created by [Broker.Connect], [Broker.Attach],
// and the accept loops started by [Broker.Listen].
//
// A reader goroutine copies inbound bytes into pooled buffers and queues them
// for the broker I/O loop, which splits them into frames. Requests are handed
// to the worker pool; replies are delivered to the waiting callers.
type Connection struct {
	broker *Broker
	handle mux.Handle
	key    string // scheme://authority of a dialed connection, or ""
	opener bool
	rwc    io.ReadWriteCloser
	log    *slog.Logger

	ctx    context.Context // governs the reader and inbound calls
	cancel context.CancelFunc

	out struct {
		// Must hold the lock to write to the transport.
		sync.Mutex
	}
	in struct {
		sync.Mutex
		q      *queue.Queue // of chunk
		closed bool
	}
	fr framer // I/O loop only

	ready     chan struct{} // closed when the handshake completes or fails
	readyOnce sync.Once
	done      chan struct{} // closed when the connection is closed
	dead      atomic.Bool   // set when the connection begins closing
	active    atomic.Int64  // time of the last frame, in Unix nanoseconds
	inbound   atomic.Int64  // requests accepted and not yet answered

	μ       sync.Mutex
	state   ConnState
	factory codec.Factory // negotiated codec
	err     error         // why the connection closed
	pending map[uint32]pending
	nextID  uint32 // last correlation ID issued
}

// A chunk is a run of bytes read from the transport, or the error that ended
// reading.
type chunk struct {
	bufs bufpool.Chain
	err  error
}

// A reply is the kind and payload of a frame answering an outbound call.
type reply struct {
	kind    FrameKind
	payload []byte
}

func newConnection(b *Broker, rwc io.ReadWriteCloser, key string, opener bool) *Connection {
	c := &Connection{
		broker:  b,
		key:     key,
		opener:  opener,
		rwc:     rwc,
		log:     b.log,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[uint32]pending),
	}
	c.ctx, c.cancel = context.WithCancel(context.WithValue(b.ctx, connContextKey{}, c))
	c.in.q = queue.New()
	c.touch()
	return c
}

// State reports the current state of c.
func (c *Connection) State() ConnState {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.state
}

// Err reports the error that caused c to close, or nil if c is not closed or
// was closed by a call to Close.
func (c *Connection) Err() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if treatErrorAsSuccess(c.err) {
		return nil
	}
	return c.err
}

// Encoding reports the name of the negotiated codec, or "" if the handshake
// has not completed.
func (c *Connection) Encoding() string {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.factory == nil {
		return ""
	}
	return c.factory.Name()
}

// Key reports the scheme://authority string used to dial c, or "" if c was
// accepted from a remote broker.
func (c *Connection) Key() string { return c.key }

// Done returns a channel that is closed when c has closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close closes c. Calls pending on c fail with ErrConnectionLost.
// Close always returns nil; use Err to check why a connection closed.
func (c *Connection) Close() error {
	c.fail(net.ErrClosed)
	<-c.done
	return nil
}

// Ping sends a liveness probe to the remote broker, and blocks until it is
// answered or ctx ends.
func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.call(ctx, KindPing, 0, 0, nil, nil)
	return err
}

func (c *Connection) touch() { c.active.Store(time.Now().UnixNano()) }

// idleSince reports whether c is open with no calls pending in either
// direction, and has had no traffic since t.
func (c *Connection) idleSince(t time.Time) bool {
	if c.inbound.Load() != 0 {
		return false
	}
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.state == StateOpen && len(c.pending) == 0 && c.active.Load() < t.UnixNano()
}

// pump reads from the transport until it fails, queueing the data for the
// broker I/O loop. It runs in its own goroutine.
//
// The reader blocks in Read holding only its own scratch space, so idle
// connections do not pin pooled buffers. Each chunk is then copied to a
// pooled buffer as by a holder, which never waits: a reader that waited on
// the pool could stall a peer whose writer holds the buffer we need.
func (c *Connection) pump() error {
	bufs := c.broker.bufs
	scratch := make([]byte, bufs.Size())
	for {
		n, err := c.rwc.Read(scratch)
		if n > 0 {
			chain, aerr := bufs.Acquire(c.ctx, 1, n)
			if aerr != nil {
				c.push(chunk{err: aerr}, mux.Hangup)
				return nil
			}
			chain[0].SetLen(copy(chain[0].Space(), scratch[:n]))
			c.push(chunk{bufs: chain}, mux.Readable)
		}
		if err != nil {
			c.push(chunk{err: err}, mux.Hangup)
			return nil
		}
	}
}

// push queues ch for the I/O loop and signals it with ev.
func (c *Connection) push(ch chunk, ev mux.Events) {
	c.in.Lock()
	if c.in.closed {
		c.in.Unlock()
		c.releaseChunks([]chunk{ch})
		return
	}
	c.in.q.Add(ch)
	c.in.Unlock()
	c.broker.mux.Notify(c.handle, ev)
}

// drainLocked removes and returns all queued chunks. The caller must hold c.in.
func (c *Connection) drainLocked() []chunk {
	out := make([]chunk, 0, c.in.q.Length())
	for c.in.q.Length() != 0 {
		out = append(out, c.in.q.Remove().(chunk))
	}
	return out
}

func (c *Connection) releaseChunks(chunks []chunk) {
	for _, ch := range chunks {
		if ch.bufs != nil {
			c.broker.bufs.Release(ch.bufs)
		}
	}
}

// service processes the queued input of c. It is called by the broker I/O
// loop when c is ready.
func (c *Connection) service() {
	c.in.Lock()
	chunks := c.drainLocked()
	c.in.Unlock()

	for i, ch := range chunks {
		if ch.err != nil {
			if n := c.fr.Len(); n != 0 {
				c.log.Debug("discarding partial frame", "bytes", n)
			}
			c.releaseChunks(chunks[i+1:])
			c.fail(ch.err)
			return
		}
		for _, buf := range ch.bufs {
			c.fr.write(buf.Bytes())
		}
		c.broker.bufs.Release(ch.bufs)

		if err := c.readFrames(); err != nil {
			c.releaseChunks(chunks[i+1:])
			c.fail(err)
			return
		}
	}
}

// readFrames routes all complete frames buffered in the framer.
func (c *Connection) readFrames() error {
	for {
		f, err := c.fr.next()
		if err != nil || f == nil {
			return err
		}
		if err := c.route(f); err != nil {
			return err
		}
	}
}

// route handles one inbound frame. An error is fatal to the connection.
func (c *Connection) route(f *Frame) error {
	b := c.broker
	b.metrics.frameRecv.Add(1)
	b.logFrame(c, f, false)
	c.touch()

	if c.State() == StateConnecting {
		return c.handshake(f)
	}
	switch f.Kind {
	case KindRequest:
		b.submit(c, f)
	case KindReply, KindException:
		c.deliver(f)
	case KindPing:
		return c.sendFrame(&Frame{Kind: KindReply, CorrelationID: f.CorrelationID})
	}
	return nil
}

// handshake handles a frame received while c is connecting.
//
// The opener sends PING(0) with its encodings in preference order. The
// acceptor replies PING(0) with the chosen encoding, or EXCEPTION(0) if there
// is none in common and then closes.
func (c *Connection) handshake(f *Frame) error {
	b := c.broker
	if f.CorrelationID != 0 {
		return fmt.Errorf("%w: %v %d before handshake", ErrProtocol, f.Kind, f.CorrelationID)
	}
	switch {
	case f.Kind == KindPing && !c.opener:
		offered, err := packet.ParseStrings(f.Payload)
		if err != nil {
			return fmt.Errorf("%w: handshake: %w", ErrProtocol, err)
		}
		name, err := codec.Negotiate(offered, b.encodingNames())
		if err != nil {
			var buf bytes.Buffer
			writeException(codec.BigEndian.NewEncoder(&buf), CodeNegotiation, "", err.Error())
			c.sendFrame(&Frame{Kind: KindException, Payload: buf.Bytes()})
			return err
		}
		c.open(b.encoding(name))
		return c.sendFrame(&Frame{Kind: KindPing, Payload: packet.Strings([]string{name})})

	case f.Kind == KindPing && c.opener:
		chosen, err := packet.ParseStrings(f.Payload)
		if err != nil || len(chosen) != 1 {
			return fmt.Errorf("%w: invalid handshake reply", ErrProtocol)
		}
		fac := b.encoding(chosen[0])
		if fac == nil || !slices.Contains(b.encodingNames(), chosen[0]) {
			return fmt.Errorf("%w: peer chose unoffered encoding %q", ErrProtocol, chosen[0])
		}
		c.open(fac)
		return nil

	case f.Kind == KindException && c.opener:
		return fmt.Errorf("handshake: %w", readException(codec.BigEndian.NewDecoder(f.Payload), nil))
	}
	return fmt.Errorf("%w: unexpected %v during handshake", ErrProtocol, f.Kind)
}

// abandon fails c with err if its handshake has not completed.
func (c *Connection) abandon(err error) {
	c.μ.Lock()
	connecting := c.state == StateConnecting
	c.μ.Unlock()
	if connecting {
		c.fail(err)
	}
}

// open completes the handshake with the negotiated codec.
func (c *Connection) open(fac codec.Factory) {
	c.μ.Lock()
	ok := c.state == StateConnecting
	if ok {
		c.state = StateOpen
		c.factory = fac
	}
	c.μ.Unlock()
	if ok {
		c.broker.metrics.connOpen.Add(1)
		c.log.Debug("connection open", "encoding", fac.Name())
	}
	c.readyOnce.Do(func() { close(c.ready) })
}

// deliver passes a reply frame to the call waiting for it. Frames with no
// matching call are discarded.
func (c *Connection) deliver(f *Frame) {
	c.μ.Lock()
	pc, ok := c.pending[f.CorrelationID]
	if ok {
		delete(c.pending, f.CorrelationID)
	}
	c.μ.Unlock()

	if !ok {
		c.broker.metrics.frameDropped.Add(1)
		c.log.Debug("dropped unmatched frame", "kind", f.Kind, "id", f.CorrelationID)
		return
	}
	pc.deliver(reply{kind: f.Kind, payload: f.Payload})
}

// register allocates a correlation ID for a new outbound call.
func (c *Connection) register() (uint32, pending, error) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.state != StateOpen {
		return 0, nil, c.lostErrLocked()
	}
	id := c.nextIDLocked()
	pc := make(pending, 1)
	c.pending[id] = pc
	return id, pc, nil
}

// nextIDLocked returns the next correlation ID not in use by a pending call.
// ID 0 is reserved for the handshake. The caller must hold c.μ.
func (c *Connection) nextIDLocked() uint32 {
	for {
		c.nextID++
		if c.nextID == 0 {
			continue
		}
		if _, busy := c.pending[c.nextID]; !busy {
			return c.nextID
		}
	}
}

func (c *Connection) unregister(id uint32) {
	c.μ.Lock()
	defer c.μ.Unlock()
	delete(c.pending, id)
}

func (c *Connection) lostErrLocked() error {
	if c.err == nil {
		return fmt.Errorf("%w: connection is %v", ErrConnectionLost, c.state)
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, c.err)
}

// call sends a frame of the given kind and waits for the reply. If the reply
// is an EXCEPTION, call decodes it, resolving declared errors against iface.
// The payload of the frame is written by put, if it is not nil.
func (c *Connection) call(ctx context.Context, kind FrameKind, objectID, methodID uint32, iface *Interface, put func(codec.Encoder)) (_ []byte, err error) {
	b := c.broker
	if _, ok := ctx.Deadline(); !ok && b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}
	if kind == KindRequest {
		b.metrics.callOut.Add(1)
		defer func() {
			if err != nil {
				b.metrics.callOutErr.Add(1)
			}
		}()
	}

	w, err := bufpool.NewWriter(ctx, b.bufs)
	if err != nil {
		return nil, err
	}
	defer w.Release()

	// Phase 1: Check for closure and register the call.
	id, pc, err := c.register()
	if err != nil {
		return nil, err
	}
	b.metrics.callPending.Add(1)
	defer b.metrics.callPending.Add(-1)

	// Phase 2: Encode and send the request. We MUST NOT hold the state lock
	// while doing this, as that will block the I/O loop from delivering.
	beginFrame(w, Frame{Kind: kind, CorrelationID: id, ObjectID: objectID, MethodID: methodID})
	if put != nil {
		enc := c.factory.NewEncoder(w)
		put(enc)
		if err := enc.Err(); err != nil {
			c.unregister(id)
			return nil, fmt.Errorf("encoding parameters: %w", err)
		}
	}
	if err := finishFrame(w); err != nil {
		c.unregister(id)
		return nil, err
	}
	if err := c.send(w); err != nil {
		c.unregister(id)
		return nil, err
	}
	w.Release()

	// Phase 3: Wait for the reply or the deadline.
	select {
	case r, ok := <-pc:
		if !ok {
			c.μ.Lock()
			defer c.μ.Unlock()
			return nil, c.lostErrLocked()
		}
		if r.kind == KindException {
			return nil, readException(c.factory.NewDecoder(r.payload), iface)
		}
		return r.payload, nil

	case <-ctx.Done():
		c.unregister(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.metrics.callTimeout.Add(1)
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// send writes the frame held by w to the transport. A write error closes c.
func (c *Connection) send(w *bufpool.Writer) error {
	err := func() error {
		c.out.Lock()
		defer c.out.Unlock()
		if c.broker.plog.Load() != nil {
			var f Frame
			if f.UnmarshalBinary(w.Bytes()[4:]) == nil {
				c.broker.logFrame(c, &f, true)
			}
		}
		_, err := w.WriteTo(c.rwc)
		return err
	}()
	return c.sent(err)
}

// sendFrame writes f to the transport. A write error closes c.
func (c *Connection) sendFrame(f *Frame) error {
	err := func() error {
		c.out.Lock()
		defer c.out.Unlock()
		c.broker.logFrame(c, f, true)
		_, err := f.WriteTo(c.rwc)
		return err
	}()
	return c.sent(err)
}

func (c *Connection) sent(err error) error {
	if err != nil {
		c.fail(err)
		c.μ.Lock()
		defer c.μ.Unlock()
		return c.lostErrLocked()
	}
	c.broker.metrics.frameSent.Add(1)
	c.touch()
	return nil
}

// fail closes c with the given error, fails all pending calls, and removes c
// from its broker. Only the first call to fail has any effect.
func (c *Connection) fail(err error) {
	c.μ.Lock()
	if c.state >= StateClosing {
		c.μ.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosing
	c.err = err
	pend := c.pending
	c.pending = nil
	c.dead.Store(true)
	c.μ.Unlock()

	c.cancel()
	c.rwc.Close()

	// Terminate all incomplete pending (outbound) calls.
	for _, pc := range pend {
		pc.close()
	}

	// Discard input not yet processed; the reader discards anything further.
	c.in.Lock()
	c.in.closed = true
	rest := c.drainLocked()
	c.in.Unlock()
	c.releaseChunks(rest)

	c.broker.dropConn(c)
	if wasOpen {
		c.broker.metrics.connOpen.Add(-1)
	}
	if treatErrorAsSuccess(err) {
		c.log.Debug("connection closed", "error", err)
	} else {
		c.log.Warn("connection failed", "error", err)
	}

	c.μ.Lock()
	c.state = StateClosed
	c.μ.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
	close(c.done)
}

func treatErrorAsSuccess(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrStopped) || errors.Is(err, errIdle)
}

type pending chan reply

func (p pending) close() {
	if p != nil {
		close(p)
	}
}

func (p pending) deliver(r reply) {
	if p != nil {
		p <- r
		close(p)
	}
}

type connContextKey struct{}

// ContextConnection returns the Connection that delivered the call being
// served by ctx, or nil if none is defined. The context passed to a method
// called from a remote broker has this value; local calls do not.
func ContextConnection(ctx context.Context) *Connection {
	if v := ctx.Value(connContextKey{}); v != nil {
		return v.(*Connection)
	}
	return nil
}
