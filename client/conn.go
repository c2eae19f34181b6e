package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bmartynov/nats-codec/internal/meta"
	"github.com/bmartynov/nats-codec/protocol"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	SubscriptionBuffer    = 1024
	ErrorBuffer           = 64
	readBufferSize        = 32 * 1024
)

var (
	ErrDisconnected  = errors.New("Client is not connected")
	ErrNoInfo        = errors.New("Server did not greet with INFO")
	ErrMaxPayload    = errors.New("Payload exceeds the max_payload of the server")
	ErrUnsubscribed  = errors.New("Subscription has already been dropped")
	ErrInvalidMaxMsg = errors.New("Auto unsubscribe needs a max of at least one message")
)

type Option func(*Conn)

// WithName sets the client name sent in CONNECT.
func WithName(name string) Option {
	return func(c *Conn) {
		c.name = name
	}
}

// WithCredentials sends user and password in CONNECT.
func WithCredentials(user, pass string) Option {
	return func(c *Conn) {
		c.user, c.pass = &user, &pass
	}
}

// Conn is a client connection. All methods are safe for concurrent use.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn net.Conn
	info *protocol.Info

	name       string
	user, pass *string

	writeMu sync.Mutex

	pongMu sync.Mutex
	pongs  []chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]*Subscription
	nextSID uint64

	errChan  chan *protocol.Err
	readDone chan struct{}

	log *zap.Logger
}

func New(log *zap.Logger, opts ...Option) *Conn {
	c := &Conn{
		log:      log,
		subs:     make(map[uint64]*Subscription),
		errChan:  make(chan *protocol.Err, ErrorBuffer),
		readDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect dials addr, waits for the INFO greeting, sends CONNECT and starts
// reading. Without a deadline on ctx the handshake is bounded by
// DefaultConnectTimeout.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultConnectTimeout)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	buf := protocol.NewBuffer(readBufferSize)
	dec := protocol.NewDecoder()

	info, err := readInfo(conn, buf, dec)
	if err != nil {
		conn.Close()
		return err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	connect := &protocol.Connect{
		Lang:     "go",
		Name:     c.name,
		Version:  meta.Version,
		Protocol: protocol.Ptr(1),
		User:     c.user,
		Pass:     c.pass,
	}

	if err := protocol.WriteMessage(conn, connect); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.info = info
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.readLoop(buf, dec)

	c.log.Info("Connected",
		zap.String("addr", addr),
		zap.String("serverID", info.ServerID),
		zap.Int64("maxPayload", info.MaxPayload))

	return nil
}

func readInfo(r io.Reader, buf *protocol.Buffer, dec *protocol.Decoder) (*protocol.Info, error) {
	for {
		m, err := dec.Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("Failed to read INFO: %w", err)
		}

		if m != nil {
			info, ok := m.(*protocol.Info)
			if !ok {
				return nil, fmt.Errorf("%w: got %s", ErrNoInfo, m.Op())
			}

			return info, nil
		}

		if _, err := buf.Fill(r); err != nil {
			return nil, fmt.Errorf("Failed to read INFO: %w", err)
		}
	}
}

// Info returns the INFO the server greeted with.
func (c *Conn) Info() *protocol.Info {
	return c.info
}

// Errors delivers -ERR replies from the server. Errors are dropped when nobody reads them.
func (c *Conn) Errors() <-chan *protocol.Err {
	return c.errChan
}

func (c *Conn) Disconnect() error {
	if c.conn == nil {
		return ErrDisconnected
	}

	c.cancel()
	err := c.conn.Close()

	<-c.readDone

	return err
}

// Ping sends PING and waits for the matching PONG.
func (c *Conn) Ping(ctx context.Context) error {
	if !c.isRunning() {
		return ErrDisconnected
	}

	pong := make(chan struct{})

	c.writeMu.Lock()

	// PONGs arrive in the order the PINGs were written.
	c.pongMu.Lock()
	c.pongs = append(c.pongs, pong)
	c.pongMu.Unlock()

	_, err := c.conn.Write(protocol.PingTerminal)
	c.writeMu.Unlock()

	if err != nil {
		return err
	}

	select {
	case <-pong:
		return nil

	case <-c.readDone:
		return ErrDisconnected

	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Publish(subject string, payload []byte) error {
	return c.PublishRequest(subject, "", payload)
}

// PublishRequest publishes with a reply subject for the receivers to answer on.
func (c *Conn) PublishRequest(subject, reply string, payload []byte) error {
	if !c.isRunning() {
		return ErrDisconnected
	}

	if int64(len(payload)) > c.info.MaxPayload {
		return fmt.Errorf("%w: %d > %d", ErrMaxPayload, len(payload), c.info.MaxPayload)
	}

	var replyTo []byte
	if reply != "" {
		replyTo = []byte(reply)
	}

	return c.write(protocol.NewPub([]byte(subject), replyTo, payload))
}

func (c *Conn) Subscribe(subject string) (*Subscription, error) {
	return c.QueueSubscribe(subject, "")
}

// QueueSubscribe joins the queue group queue, each message is delivered to one member of the group.
func (c *Conn) QueueSubscribe(subject, queue string) (*Subscription, error) {
	if !c.isRunning() {
		return nil, ErrDisconnected
	}

	c.subMu.Lock()
	c.nextSID++
	sub := &Subscription{
		conn:    c,
		SID:     c.nextSID,
		Subject: subject,
		Queue:   queue,
		msgs:    make(chan *protocol.Msg, SubscriptionBuffer),
	}
	c.subs[sub.SID] = sub
	c.subMu.Unlock()

	var queueGroup []byte
	if queue != "" {
		queueGroup = []byte(queue)
	}

	if err := c.write(protocol.NewSub([]byte(subject), queueGroup, sub.SID)); err != nil {
		c.removeSub(sub.SID)
		return nil, err
	}

	return sub, nil
}

func (c *Conn) write(m protocol.Message) error {
	if !c.isRunning() {
		return ErrDisconnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return protocol.WriteMessage(c.conn, m)
}

func (c *Conn) readLoop(buf *protocol.Buffer, dec *protocol.Decoder) {
	log := c.log.Named("readLoop")

	defer func() {
		c.cancel()

		c.subMu.Lock()
		for sid, sub := range c.subs {
			sub.close()
			delete(c.subs, sid)
		}
		c.subMu.Unlock()

		close(c.readDone)
		log.Info("Read loop exited")
	}()

	for {
		for {
			m, err := dec.Decode(buf)
			if err != nil {
				log.Error("Failed to decode server message", zap.Error(err))
				return
			}

			if m == nil {
				break
			}

			c.handle(m)
		}

		if _, err := buf.Fill(c.conn); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Failed to read from server", zap.Error(err))
			}

			return
		}
	}
}

func (c *Conn) handle(m protocol.Message) {
	switch v := m.(type) {
	case *protocol.Msg:
		c.deliver(v)

	case *protocol.Ping:
		if err := c.writePong(); err != nil {
			c.log.Warn("Failed to answer PING", zap.Error(err))
		}

	case *protocol.Pong:
		c.pongMu.Lock()
		if len(c.pongs) > 0 {
			close(c.pongs[0])
			c.pongs = c.pongs[1:]
		}
		c.pongMu.Unlock()

	case *protocol.Err:
		select {
		case c.errChan <- v:
		default:
			c.log.Warn("Dropped server error", zap.Error(v))
		}

	case *protocol.Info, *protocol.Ok:
	}
}

func (c *Conn) writePong() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Write(protocol.PongTerminal)
	return err
}

func (c *Conn) deliver(msg *protocol.Msg) {
	c.subMu.Lock()
	sub, ok := c.subs[msg.SID]
	c.subMu.Unlock()

	if !ok {
		return
	}

	if !sub.deliver(msg) {
		c.log.Warn("Slow subscription, dropped message",
			zap.Uint64("sid", sub.SID),
			zap.String("subject", sub.Subject))
	}

	if sub.exhausted() {
		c.removeSub(sub.SID)
	}
}

func (c *Conn) removeSub(sid uint64) {
	c.subMu.Lock()
	sub, ok := c.subs[sid]
	delete(c.subs, sid)
	c.subMu.Unlock()

	if ok {
		sub.close()
	}
}

// isRunning returns true until the connection is closed
func (c *Conn) isRunning() bool {
	if c.ctx == nil {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false

	default:
		return true
	}
}
