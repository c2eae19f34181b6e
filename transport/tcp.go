package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bmartynov/nats-codec/internal/meta"
	"github.com/bmartynov/nats-codec/protocol"
	"github.com/bmartynov/nats-codec/storage"
)

var ErrNotStarted = errors.New("TCP server has not been started")

// TCP is a server speaking the client protocol on one or more listeners.
type TCP struct {
	cancel     context.CancelFunc
	group      *errgroup.Group
	connWaiter sync.WaitGroup

	addr         string
	reuseport    bool
	numListeners int
	listeners    []net.Listener

	info           protocol.Info
	maxControlLine int
	queueSize      int
	trace          bool

	store   storage.Store
	metrics *Metrics

	mu     sync.Mutex
	conns  map[uint64]*TCPConn
	nextID uint64

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	options.setDefaults()

	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		numListeners = 1
	}

	serverID := options.ServerName
	if serverID == "" {
		serverID = randomServerID()
	}

	info := protocol.NewInfo()
	info.ServerID = serverID
	info.Version = meta.GetInfo().Version
	info.Proto = protocol.Ptr(1)
	info.Go = runtime.Version()
	info.Host = options.Host
	info.Port = options.Port
	info.MaxPayload = options.MaxPayload

	return &TCP{
		addr:           net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:      options.Reuseport,
		numListeners:   numListeners,
		listeners:      make([]net.Listener, 0, numListeners),
		info:           *info,
		maxControlLine: options.MaxControlLine,
		queueSize:      options.QueueSize,
		trace:          options.Trace,
		store:          options.Store,
		metrics:        options.Metrics,
		conns:          make(map[uint64]*TCPConn),
		log:            options.Log,
	}
}

// Start opens every listener and returns once they are accepting connections.
func (t *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	t.cancel = cancel

	t.log.Info("Starting tcp listeners", zap.Int("count", t.numListeners))

	addr := t.addr
	for i := 0; i < t.numListeners; i++ {
		listener, err := t.listen(addr)
		if err != nil {
			cancel()
			return multierr.Append(err, t.closeListeners())
		}

		// With port 0 every further listener has to share the port picked for the first.
		addr = listener.Addr().String()
		t.listeners = append(t.listeners, listener)
	}

	if tcpAddr, ok := t.listeners[0].Addr().(*net.TCPAddr); ok {
		t.info.Port = tcpAddr.Port
	}

	group, groupCtx := errgroup.WithContext(ctx)
	t.group = group

	for i, listener := range t.listeners {
		listener := listener
		log := t.log.Named("listener").With(zap.Int("listener", i))

		group.Go(func() error {
			return t.accept(groupCtx, listener, log)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		return t.closeListeners()
	})

	updates := t.store.ListenToUpdates()
	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return nil

			case update, ok := <-updates:
				if !ok {
					return nil
				}

				t.metrics.subscriptions.Set(float64(update.Count))
			}
		}
	})

	return nil
}

// Addr returns the address of the first listener.
func (t *TCP) Addr() net.Addr {
	if len(t.listeners) == 0 {
		return nil
	}

	return t.listeners[0].Addr()
}

func (t *TCP) Store() storage.Store {
	return t.store
}

func (t *TCP) Metrics() *Metrics {
	return t.metrics
}

// Info returns the INFO sent to clients, without a client id.
func (t *TCP) Info() protocol.Info {
	return t.info
}

// Varz is a snapshot of the server state.
type Varz struct {
	Info          protocol.Info `json:"info"`
	Connections   int           `json:"connections"`
	Subscriptions int           `json:"subscriptions"`
}

func (t *TCP) Varz() Varz {
	t.mu.Lock()
	conns := len(t.conns)
	t.mu.Unlock()

	return Varz{
		Info:          t.info,
		Connections:   conns,
		Subscriptions: t.store.Count(),
	}
}

// Close immediately closes all listeners and connections.
func (t *TCP) Close() error {
	if t.cancel == nil {
		return ErrNotStarted
	}

	t.log.Info("Stopping TCP server")
	t.cancel()

	err := t.group.Wait()

	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()

	t.connWaiter.Wait()
	t.log.Info("TCP server stopped")

	return err
}

func (t *TCP) listen(addr string) (net.Listener, error) {
	if t.reuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

func (t *TCP) closeListeners() (err error) {
	for _, listener := range t.listeners {
		if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	return err
}

func (t *TCP) accept(ctx context.Context, listener net.Listener, log *zap.Logger) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("Stopped accepting new connections")
				return nil
			}

			return err
		}

		id := atomic.AddUint64(&t.nextID, 1)
		tcpConn := newTCPConn(ctx, id, conn, t, t.log.Named("conn").With(zap.Uint64("cid", id)))

		t.addConn(tcpConn)
		t.connWaiter.Add(1)

		go func() {
			defer t.connWaiter.Done()
			defer t.removeConn(tcpConn)

			if err := tcpConn.Start(); err != nil {
				log.Info("Connection closed", zap.Uint64("cid", tcpConn.id), zap.Error(err))
			}
		}()
	}
}

// route delivers pub as a MSG to every subscription matching its subject.
func (t *TCP) route(pub *protocol.Pub) (err error) {
	for _, sub := range t.store.Deliver(string(pub.Subject)) {
		target := t.conn(sub.Owner)
		if target == nil {
			continue
		}

		frame, ferr := protocol.Encode(protocol.NewMsg(pub.Subject, sub.SID, pub.ReplyTo, pub.Payload))
		if ferr != nil {
			err = multierr.Append(err, ferr)
			continue
		}

		if werr := target.enqueue(frame); werr != nil {
			err = multierr.Append(err, werr)
			continue
		}

		t.metrics.deliveredTotal.Inc()
	}

	return err
}

func (t *TCP) conn(id uint64) *TCPConn {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conns[id]
}

func (t *TCP) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[conn.id] = conn
	t.metrics.connections.Inc()
}

func (t *TCP) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.conns, conn.id)
	t.metrics.connections.Dec()
}

const serverIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomServerID() string {
	id := make([]byte, 22)
	for i := range id {
		id[i] = serverIDAlphabet[rand.Intn(len(serverIDAlphabet))]
	}

	return string(id)
}
