// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/orb/accept"
	"github.com/creachadair/orb/bufpool"
	"github.com/creachadair/orb/catalog"
	"github.com/creachadair/orb/channel"
	"github.com/creachadair/orb/codec"
	"github.com/creachadair/orb/mux"
	"github.com/creachadair/orb/objref"
	"github.com/creachadair/orb/packet"
	"github.com/creachadair/orb/threadpool"
	"github.com/creachadair/taskgroup"
	"github.com/google/uuid"
)

// LocalScheme is the reference scheme for objects of the broker itself.
const LocalScheme = "local"

// Config carries the settings for a Broker. A zero Config is ready for use
// and provides default values as described on each field.
type Config struct {
	// Encodings lists the names of the codecs offered when opening a
	// connection and accepted from remote brokers, in order of preference.
	// If empty, all registered codecs are used in order of registration,
	// beginning with "fixed-be" and "fixed-le".
	Encodings []string

	// Workers is the number of worker goroutines serving inbound calls.
	// If zero, 4 workers are started.
	Workers int

	// Jobs is the source from which workers pull inbound calls.
	// If nil, an unbounded FIFO is used. With a bounded source, requests
	// beyond its limit are rejected with ErrBusy.
	Jobs threadpool.Source

	// BufferSize is the size in bytes of pooled I/O buffers.
	// If zero, bufpool.DefaultSize is used.
	BufferSize int

	// BufferCapacity bounds the number of pooled buffers.
	// If zero, 1024 is used.
	BufferCapacity int

	// CallTimeout bounds outbound calls whose context has no deadline.
	// If zero, 30 seconds is used; if negative, such calls have no limit.
	CallTimeout time.Duration

	// IdleTimeout is how long a connection with no pending calls and no
	// traffic stays open. If zero, idle connections are kept open.
	IdleTimeout time.Duration

	// Logger receives broker log messages. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = bufpool.DefaultSize
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = 1024
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// A FrameLogger logs a frame exchanged with a remote broker.
type FrameLogger func(FrameInfo)

// A FrameInfo combines a frame, the connection that carried it, and a flag
// indicating whether the frame was sent or received.
type FrameInfo struct {
	*Frame             // the frame being logged
	Conn   *Connection // the connection carrying the frame
	Sent   bool        // whether the frame was sent (true) or received (false)
}

func (f FrameInfo) dir() string {
	if f.Sent {
		return "send"
	}
	return "recv"
}

func (f FrameInfo) String() string {
	return fmt.Sprintf("%v %v", f.dir(), f.Frame)
}

// A Broker manages the objects of one process and its connections to other
// brokers. Objects registered with the broker can be called by local stubs
// and, through connections, by remote brokers.
//
// Call New to construct a broker and Start to start its I/O loop. A broker
// runs until Stop is called. The methods of a Broker are safe for concurrent
// use by multiple goroutines.
type Broker struct {
	id      string
	cfg     Config
	log     *slog.Logger
	bufs    *bufpool.Pool
	pool    *threadpool.Pool
	mux     *mux.Multiplexer
	metrics *brokerMetrics
	plog    atomic.Pointer[FrameLogger]
	tasks   *taskgroup.Group

	ctx    context.Context // ends when the broker stops
	cancel context.CancelFunc

	μ          sync.RWMutex
	started    bool
	stopped    bool
	encodings  map[string]codec.Factory
	encOrder   []string // registration order
	schemes    map[string]channel.Transport
	byName     map[string]*Skeleton
	byID       map[uint32]*Skeleton
	nextObject uint32
	stubs      map[objref.Ref]*Stub // by unresolved name
	conns      map[mux.Handle]*Connection
	byKey      map[string]*Connection // dialed connections
	nextHandle mux.Handle
	listening  mapset.Set[string] // scheme://authority of each listener
}

// New constructs a new, unstarted broker with the given settings.
// The fixed codecs and the "tcp" and "unix" schemes are pre-registered.
func New(cfg Config) *Broker {
	cfg = cfg.withDefaults()
	b := &Broker{
		id:   uuid.NewString(),
		cfg:  cfg,
		bufs: bufpool.New(bufpool.Config{Size: cfg.BufferSize, Capacity: cfg.BufferCapacity}),
		pool: threadpool.New(cfg.Workers, cfg.Jobs),
		mux:  mux.New(),

		encodings: make(map[string]codec.Factory),
		schemes:   make(map[string]channel.Transport),
		byName:    make(map[string]*Skeleton),
		byID:      make(map[uint32]*Skeleton),
		stubs:     make(map[objref.Ref]*Stub),
		conns:     make(map[mux.Handle]*Connection),
		byKey:     make(map[string]*Connection),
		listening: mapset.New[string](),
	}
	b.log = cfg.Logger.With("broker", b.id)
	b.tasks = taskgroup.New(nil)
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.metrics = newBrokerMetrics(b.bufs, b.pool)
	b.pool.OnPanic(func(x any) {
		b.log.Error("worker panicked (recovered)", "panic", x)
	})

	b.RegisterEncoding(codec.BigEndian)
	b.RegisterEncoding(codec.LittleEndian)
	b.RegisterScheme("tcp", channel.TCP(cfg.CallTimeout))
	b.RegisterScheme("unix", channel.Unix())

	resolver := newSkeleton(0, resolverName, resolverInterface, b)
	b.byName[resolverName] = resolver
	b.byID[0] = resolver
	b.nextObject = 1
	return b
}

// ID returns the instance ID of b, which is also the authority of its local
// object references.
func (b *Broker) ID() string { return b.id }

// Metrics returns a map of broker metrics. It is safe for the caller to
// modify the map to add, update, and remove entries.
//
// The metrics exported include:
//
//   - frames_received: counter of frames received
//   - frames_sent: counter of frames sent
//   - frames_dropped: counter of replies received with no matching call
//   - calls_in: counter of inbound call requests received
//   - calls_in_failed: counter of inbound calls resulting in exceptions
//   - calls_active: gauge of inbound calls currently active
//   - calls_out: counter of outbound call requests sent
//   - calls_out_failed: counter of outbound calls resulting in errors
//   - calls_pending: gauge of outbound calls currently pending
//   - calls_timeout: counter of outbound calls that timed out
//   - connections_open: gauge of open connections
//   - buffers_live, buffers_held: gauges of the buffer pool
//   - workers, jobs_pending: gauges of the worker pool
func (b *Broker) Metrics() *expvar.Map { return b.metrics.emap }

// Buffers returns the buffer pool used by b for I/O.
func (b *Broker) Buffers() *bufpool.Pool { return b.bufs }

// LogFrames registers a callback to be invoked for each frame sent or
// received by b. Pass nil to disable logging. LogFrames returns b to permit
// chaining.
func (b *Broker) LogFrames(log FrameLogger) *Broker {
	if log == nil {
		b.plog.Store(nil)
	} else {
		b.plog.Store(&log)
	}
	return b
}

func (b *Broker) logFrame(c *Connection, f *Frame, sent bool) {
	if log := b.plog.Load(); log != nil {
		(*log)(FrameInfo{Frame: f, Conn: c, Sent: sent})
	}
}

// RegisterEncoding adds a codec to b. It reports ErrAlreadyRegistered if a
// codec with the same name is already registered.
func (b *Broker) RegisterEncoding(f codec.Factory) error {
	b.μ.Lock()
	defer b.μ.Unlock()
	name := f.Name()
	if _, ok := b.encodings[name]; ok {
		return fmt.Errorf("encoding %q: %w", name, ErrAlreadyRegistered)
	}
	b.encodings[name] = f
	b.encOrder = append(b.encOrder, name)
	return nil
}

// encoding returns the codec with the given name, or nil.
func (b *Broker) encoding(name string) codec.Factory {
	b.μ.RLock()
	defer b.μ.RUnlock()
	return b.encodings[name]
}

// encodingNames returns the names of the codecs b offers and accepts, in
// order of preference.
func (b *Broker) encodingNames() []string {
	b.μ.RLock()
	defer b.μ.RUnlock()
	if len(b.cfg.Encodings) == 0 {
		return slices.Clone(b.encOrder)
	}
	var out []string
	for _, name := range b.cfg.Encodings {
		if _, ok := b.encodings[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// RegisterScheme adds a transport for the given reference scheme. It reports
// ErrAlreadyRegistered if the scheme already has a transport. The scheme
// "local" is reserved.
func (b *Broker) RegisterScheme(scheme string, t channel.Transport) error {
	b.μ.Lock()
	defer b.μ.Unlock()
	if _, ok := b.schemes[scheme]; ok || scheme == LocalScheme {
		return fmt.Errorf("scheme %q: %w", scheme, ErrAlreadyRegistered)
	}
	b.schemes[scheme] = t
	return nil
}

// Register adds an object with the given name implementing iface, and
// returns its local reference. It reports ErrAlreadyRegistered if name is
// in use, and an error if impl does not implement the methods of iface.
func (b *Broker) Register(name string, iface *Interface, impl any) (objref.Ref, error) {
	if name == "" {
		return objref.Ref{}, errors.New("empty object name")
	}
	if err := iface.implementedBy(impl); err != nil {
		return objref.Ref{}, err
	}

	b.μ.Lock()
	defer b.μ.Unlock()
	if _, ok := b.byName[name]; ok {
		return objref.Ref{}, fmt.Errorf("object %q: %w", name, ErrAlreadyRegistered)
	}
	id := b.nextObject
	for b.byID[id] != nil {
		id++
	}
	b.nextObject = id + 1
	skel := newSkeleton(id, name, iface, impl)
	b.byName[name] = skel
	b.byID[id] = skel
	b.log.Debug("registered object", "name", name, "id", id, "interface", iface.name)
	return skel.ref(LocalScheme, b.id), nil
}

// Unregister removes the object with the given name. Later calls to the
// object, including calls through existing stubs, report ErrNoObject.
func (b *Broker) Unregister(name string) error {
	if name == resolverName {
		return fmt.Errorf("object %q is reserved", name)
	}
	b.μ.Lock()
	defer b.μ.Unlock()
	skel, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("object %q: %w", name, ErrNoObject)
	}
	skel.live.Store(false)
	delete(b.byName, name)
	delete(b.byID, skel.id)
	for key, s := range b.stubs {
		if s.skel == skel {
			delete(b.stubs, key)
		}
	}
	return nil
}

func (b *Broker) skeletonByID(id uint32) *Skeleton {
	b.μ.RLock()
	defer b.μ.RUnlock()
	return b.byID[id]
}

// isLocal reports whether ref names an object of b itself.
func (b *Broker) isLocal(ref objref.Ref) bool {
	if ref.Scheme == LocalScheme {
		return ref.Authority == "" || ref.Authority == b.id
	}
	b.μ.RLock()
	defer b.μ.RUnlock()
	return b.listening.Has(ref.Key())
}

// GetObject returns a stub for the object named by uri, which has the form
// scheme://authority/name.
//
// References with the scheme "local" and an empty authority or the ID of b,
// and references to an address where b is listening, resolve to local
// objects. Otherwise GetObject connects to the remote broker, or reuses an
// open connection, and asks it to resolve the name.
//
// Stubs are cached: while a stub has references, GetObject returns the same
// stub for the same uri. Call Release on the stub when it is no longer needed.
func (b *Broker) GetObject(ctx context.Context, uri string) (*Stub, error) {
	ref, err := objref.Parse(uri)
	if err != nil {
		return nil, err
	}
	key := ref.Name()
	if s := b.cachedStub(key); s != nil {
		return s, nil
	}

	if b.isLocal(ref) {
		b.μ.RLock()
		skel := b.byName[ref.Path]
		b.μ.RUnlock()
		if skel == nil || ref.Scheme == LocalScheme && ref.Authority != "" && ref.Authority != b.id {
			return nil, fmt.Errorf("object %q: %w", ref.Path, ErrNoObject)
		}
		return b.cacheStub(&Stub{
			broker:  b,
			key:     key,
			ref:     skel.ref(ref.Scheme, ref.Authority),
			methods: skel.iface.methods,
			skel:    skel,
		}), nil
	} else if ref.Scheme == LocalScheme {
		return nil, fmt.Errorf("broker %q: %w", ref.Authority, ErrNoObject)
	}

	c, err := b.Connect(ctx, ref.Scheme, ref.Authority)
	if err != nil {
		return nil, err
	}
	res, err := Invoke(ctx, c.resolver(), resolveMethod, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", ref.Path, err)
	}
	var cat catalog.Catalog
	if err := cat.Decode(res.Methods); err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %w", ErrProtocol, ref.Path, err)
	}
	resolved := ref
	resolved.ObjectID, resolved.Interface, resolved.Version = res.ID, res.Interface, res.Version
	return b.cacheStub(&Stub{
		broker:  b,
		key:     key,
		ref:     resolved,
		methods: cat,
		conn:    c,
	}), nil
}

// cachedStub returns a cached stub for key with a new reference, or nil.
func (b *Broker) cachedStub(key objref.Ref) *Stub {
	b.μ.Lock()
	defer b.μ.Unlock()
	s, ok := b.stubs[key]
	if !ok {
		return nil
	} else if s.conn != nil && s.conn.dead.Load() {
		delete(b.stubs, key)
		return nil
	}
	s.refs++
	return s
}

// cacheStub adds s to the stub cache with one reference, unless another stub
// for the same name was cached first, in which case that one is returned.
func (b *Broker) cacheStub(s *Stub) *Stub {
	b.μ.Lock()
	defer b.μ.Unlock()
	if old, ok := b.stubs[s.key]; ok {
		old.refs++
		return old
	}
	s.refs = 1
	if s.skel != nil {
		s.skel.stubs++
	}
	if s.conn == nil || !s.conn.dead.Load() {
		b.stubs[s.key] = s
	}
	return s
}

func (b *Broker) releaseStub(s *Stub) {
	b.μ.Lock()
	defer b.μ.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	if b.stubs[s.key] == s {
		delete(b.stubs, s.key)
	}
	if s.skel != nil {
		s.skel.stubs--
	}
}

// Start starts the I/O loop of b, and returns b to permit chaining.
// Calling Start more than once has no further effect.
func (b *Broker) Start() *Broker {
	b.μ.Lock()
	defer b.μ.Unlock()
	if !b.started && !b.stopped {
		b.started = true
		b.tasks.Go(b.run)
	}
	return b
}

// Stop closes all connections and listeners of b, stops its workers, and
// waits for the broker to exit. Calls in progress on worker goroutines are
// allowed to finish; queued calls are discarded.
func (b *Broker) Stop() error {
	b.μ.Lock()
	if b.stopped {
		b.μ.Unlock()
		return b.Wait()
	}
	b.stopped = true
	conns := slices.Collect(maps.Values(b.conns))
	b.μ.Unlock()

	b.cancel()
	b.mux.Interrupt()
	for _, c := range conns {
		c.fail(ErrStopped)
	}
	if n := b.pool.Terminate(); n != 0 {
		b.log.Debug("discarded queued calls", "count", n)
	}
	return b.Wait()
}

// Wait blocks until b has stopped and its goroutines have exited.
func (b *Broker) Wait() error {
	<-b.ctx.Done()
	return b.tasks.Wait()
}

// Resize changes the number of workers serving inbound calls.
func (b *Broker) Resize(n int) error { return b.pool.Resize(n) }

// run is the I/O loop of the broker. It waits for connections to become
// ready, and processes their input.
func (b *Broker) run() error {
	tick := time.Duration(-1)
	if d := b.cfg.IdleTimeout; d > 0 {
		tick = max(d/4, time.Millisecond)
	}
	for {
		b.mux.PollTimeout(tick)
		if b.ctx.Err() != nil {
			return nil
		}
		b.mux.Signal(func(h mux.Handle, _ mux.Events) {
			if c := b.connection(h); c != nil {
				c.service()
			}
		})
		if tick > 0 {
			b.reapIdle(time.Now().Add(-b.cfg.IdleTimeout))
		}
	}
}

func (b *Broker) connection(h mux.Handle) *Connection {
	b.μ.RLock()
	defer b.μ.RUnlock()
	return b.conns[h]
}

// reapIdle closes open connections with no calls pending and no traffic
// since t.
func (b *Broker) reapIdle(t time.Time) {
	b.μ.RLock()
	conns := slices.Collect(maps.Values(b.conns))
	b.μ.RUnlock()
	for _, c := range conns {
		if c.idleSince(t) {
			c.fail(errIdle)
		}
	}
}

// submit hands an inbound request to the worker pool. If the pool rejects
// it, the caller receives an exception.
func (b *Broker) submit(c *Connection, f *Frame) {
	c.inbound.Add(1)
	err := b.pool.Submit(func() { b.serve(c, f) })
	if err == nil {
		return
	}
	c.inbound.Add(-1)
	b.metrics.callIn.Add(1)
	b.metrics.callInErr.Add(1)
	code := CodeFailure
	if errors.Is(err, threadpool.ErrFull) {
		code = CodeBusy
	}
	var buf bytes.Buffer
	writeException(c.factory.NewEncoder(&buf), code, "", err.Error())
	c.sendFrame(&Frame{Kind: KindException, CorrelationID: f.CorrelationID, Payload: buf.Bytes()})
}

// serve dispatches an inbound request to its skeleton and sends the result.
// It runs on a worker goroutine.
func (b *Broker) serve(c *Connection, f *Frame) {
	defer c.inbound.Add(-1)
	b.metrics.callIn.Add(1)
	b.metrics.callActive.Add(1)
	defer b.metrics.callActive.Add(-1)

	w, err := bufpool.NewWriter(c.ctx, b.bufs)
	if err != nil {
		b.metrics.callInErr.Add(1)
		c.log.Warn("dropped request", "id", f.CorrelationID, "error", err)
		return
	}
	defer w.Release()

	beginFrame(w, Frame{Kind: KindReply, CorrelationID: f.CorrelationID})
	skel := b.skeletonByID(f.ObjectID)
	if skel == nil {
		err = fmt.Errorf("%w: object %d", ErrNoObject, f.ObjectID)
	} else {
		err = skel.Dispatch(c.ctx, f.MethodID, c.factory.NewDecoder(f.Payload), c.factory.NewEncoder(w))
	}
	if err == nil {
		err = finishFrame(w)
	}
	if err != nil {
		b.metrics.callInErr.Add(1)
		var iface *Interface
		if skel != nil {
			iface = skel.iface
		}
		code, name := classify(err, iface)
		w.Truncate(0)
		beginFrame(w, Frame{Kind: KindException, CorrelationID: f.CorrelationID})
		writeException(c.factory.NewEncoder(w), code, name, err.Error())
		finishFrame(w)
	}
	c.send(w)
}

// Listen starts accepting connections from remote brokers on the given
// scheme and authority, and returns the scheme://authority string at which
// b can be reached. Objects of b are named by appending "/name".
// The listener runs until b stops.
func (b *Broker) Listen(ctx context.Context, scheme, authority string) (string, error) {
	b.μ.RLock()
	tr, ok := b.schemes[scheme]
	started, stopped := b.started, b.stopped
	b.μ.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	} else if !started || stopped {
		return "", ErrStopped
	}

	lst, err := tr.Listen(ctx, authority)
	if err != nil {
		return "", fmt.Errorf("listen %s://%s: %w", scheme, authority, err)
	}
	addr := lst.Addr().String()
	if lst.Addr().Network() == "unix" {
		addr = url.PathEscape(addr)
	}
	key := scheme + "://" + addr

	b.μ.Lock()
	b.listening.Add(key)
	b.μ.Unlock()
	b.log.Info("listening", "addr", key)

	b.tasks.Go(func() error {
		err := accept.Loop(b.ctx, accept.NetAccepter(lst), func(rwc io.ReadWriteCloser) accept.Session {
			return b.Attach(rwc)
		})
		if err != nil {
			b.log.Warn("accept loop failed", "addr", key, "error", err)
		}
		b.μ.Lock()
		b.listening.Remove(key)
		b.μ.Unlock()
		return nil
	})
	return key, nil
}

// Attach starts a connection on rwc, which was accepted from a remote broker
// that will open the connection. Attach takes ownership of rwc.
func (b *Broker) Attach(rwc io.ReadWriteCloser) *Connection {
	return b.attach(rwc, "", false)
}

func (b *Broker) attach(rwc io.ReadWriteCloser, key string, opener bool) *Connection {
	c := newConnection(b, rwc, key, opener)
	b.μ.Lock()
	if b.stopped {
		b.μ.Unlock()
		c.fail(ErrStopped)
		return c
	}
	b.nextHandle++
	c.handle = b.nextHandle
	c.log = b.log.With("conn", c.handle)
	b.conns[c.handle] = c
	b.μ.Unlock()

	b.mux.Add(c.handle, mux.Readable)
	b.tasks.Go(c.pump)
	return c
}

// dropConn removes c from the tables of b, and discards stubs bound to it.
func (b *Broker) dropConn(c *Connection) {
	b.μ.Lock()
	if b.conns[c.handle] == c {
		delete(b.conns, c.handle)
	}
	if c.key != "" && b.byKey[c.key] == c {
		delete(b.byKey, c.key)
	}
	for key, s := range b.stubs {
		if s.conn == c {
			delete(b.stubs, key)
		}
	}
	b.μ.Unlock()
	b.mux.Remove(c.handle, mux.Readable|mux.Writable)
}

// Connect returns an open connection to the broker at the given scheme and
// authority, dialing and opening a new one if necessary.
func (b *Broker) Connect(ctx context.Context, scheme, authority string) (*Connection, error) {
	key := scheme + "://" + authority
	b.μ.RLock()
	c := b.byKey[key]
	tr, ok := b.schemes[scheme]
	started, stopped := b.started, b.stopped
	b.μ.RUnlock()

	if !started || stopped {
		return nil, ErrStopped
	} else if c != nil && !c.dead.Load() {
		return c, nil
	} else if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	rwc, err := tr.Dial(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", key, err)
	}
	c = b.attach(rwc, key, true)

	// The handshake is bounded like a call. Abandoning it closes the
	// transport, which also unblocks a handshake write the peer never reads.
	if _, ok := ctx.Deadline(); !ok && b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, func() {
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: handshake: %w", ErrTimeout, err)
		}
		c.abandon(err)
	})
	defer stop()

	if err := c.sendFrame(&Frame{Kind: KindPing, Payload: packet.Strings(b.encodingNames())}); err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}
	<-c.ready
	if c.State() != StateOpen {
		c.μ.Lock()
		err := c.err
		c.μ.Unlock()
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}

	b.μ.Lock()
	if old := b.byKey[key]; old != nil && !old.dead.Load() {
		b.μ.Unlock()
		c.Close()
		return old, nil
	} else if !c.dead.Load() {
		b.byKey[key] = c
	}
	b.μ.Unlock()
	return c, nil
}

// Ping connects to the broker at the given scheme and authority and checks
// that it responds. It reports the round-trip time.
func (b *Broker) Ping(ctx context.Context, scheme, authority string) (time.Duration, error) {
	c, err := b.Connect(ctx, scheme, authority)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := c.Ping(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

const resolverName = "_resolver"

// A resolution describes a registered object to a remote broker.
type resolution struct {
	ID        uint32
	Interface string
	Version   uint32
	Methods   []byte // encoded catalog
}

var resolutionValue = codec.Value[resolution]{
	Put: func(e codec.Encoder, r resolution) {
		e.WriteUint32(r.ID)
		e.WriteString(r.Interface)
		e.WriteUint32(r.Version)
		e.WriteBytes(r.Methods)
	},
	Get: func(d codec.Decoder) (r resolution, err error) {
		if r.ID, err = d.ReadUint32(); err != nil {
			return
		}
		if r.Interface, err = d.ReadString(); err != nil {
			return
		}
		if r.Version, err = d.ReadUint32(); err != nil {
			return
		}
		r.Methods, err = d.ReadBytes()
		return
	},
}

var (
	resolverInterface = NewInterface(resolverName, 1)

	resolveMethod = Define(resolverInterface, "resolve", codec.String, resolutionValue,
		func(_ context.Context, b *Broker, name string) (resolution, error) {
			b.μ.RLock()
			defer b.μ.RUnlock()
			skel, ok := b.byName[name]
			if !ok {
				return resolution{}, fmt.Errorf("object %q: %w", name, ErrNoObject)
			}
			return resolution{
				ID:        skel.id,
				Interface: skel.iface.name,
				Version:   skel.iface.version,
				Methods:   skel.iface.methods.Encode(),
			}, nil
		})
)

// resolver returns a stub for the resolver of the broker at the other end
// of c.
func (c *Connection) resolver() *Stub {
	return &Stub{
		broker:  c.broker,
		ref:     objref.Ref{Scheme: "", Path: resolverName, Interface: resolverName, Version: 1},
		methods: resolverInterface.methods,
		conn:    c,
	}
}
