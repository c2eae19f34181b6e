package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bmartynov/nats-codec/protocol"
	"github.com/bmartynov/nats-codec/storage"
)

const readBufferSize = 32 * 1024

var (
	ErrConnClosed   = errors.New("Connection is closed")
	ErrSlowConsumer = errors.New("Connection write queue is full")
	ErrClientClosed = errors.New("Connection closed after a protocol violation")
)

// TCPConn is one client connection. The read loop decodes and handles client
// messages, the write loop owns every write to the socket.
type TCPConn struct {
	ctx    context.Context
	cancel context.CancelFunc

	id     uint64
	conn   net.Conn
	server *TCP

	writeQueue chan []byte

	verbose atomic.Bool

	log *zap.Logger
}

func newTCPConn(parentCtx context.Context, id uint64, conn net.Conn, server *TCP, log *zap.Logger) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		id:         id,
		conn:       conn,
		server:     server,
		writeQueue: make(chan []byte, server.queueSize),
		log:        log,
	}
}

// Start greets the client with INFO and runs the read and write loops until
// either of them stops. The client's subscriptions are dropped on return.
func (t *TCPConn) Start() error {
	defer func() {
		removed := t.server.store.RemoveOwner(t.id)
		t.log.Debug("Connection finished", zap.Int("subscriptions", removed))
	}()

	info := t.server.info
	info.ClientID = protocol.Ptr(t.id)

	if err := t.enqueueMessage(&info); err != nil {
		t.Close()
		return err
	}

	group := new(errgroup.Group)

	group.Go(func() error {
		// Stop reading, but allow queued writes to drain
		defer t.cancel()
		return t.readLoop()
	})

	group.Go(func() error {
		return t.writeLoop()
	})

	return group.Wait()
}

// Close stops both loops. Frames already queued are still written.
func (t *TCPConn) Close() error {
	t.cancel()
	return nil
}

func (t *TCPConn) readLoop() error {
	log := t.log.Named("readLoop")

	buf := protocol.NewBuffer(readBufferSize)
	dec := protocol.NewDecoder(protocol.WithMaxControlLine(t.server.maxControlLine))

	for {
		n, rerr := buf.Fill(t.conn)

		if n > 0 {
			if err := t.decode(dec, buf); err != nil {
				log.Info("Closing connection", zap.Error(err))
				return err
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, net.ErrClosed) || t.ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("Failed to read from client: %w", rerr)
		}
	}
}

// decode handles every complete message in buf.
func (t *TCPConn) decode(dec *protocol.Decoder, buf *protocol.Buffer) error {
	for {
		m, err := dec.Decode(buf)
		if err != nil {
			return t.decodeFailed(err)
		}

		// Oversized bodies are refused before they have been buffered.
		if t.payloadTooBig(dec.Pending()) || t.payloadTooBig(m) {
			return t.fatal(protocol.NewErr(protocol.ErrKindMaximumPayloadViolation))
		}

		if m == nil {
			return nil
		}

		if err := t.handle(m); err != nil {
			return err
		}
	}
}

func (t *TCPConn) decodeFailed(err error) error {
	t.log.Debug("Failed to decode client message", zap.Error(err))

	if errors.Is(err, protocol.ErrControlLineTooLong) {
		return t.fatal(protocol.NewErr(protocol.ErrKindMaximumControlLineExceeded))
	}

	return t.fatal(protocol.NewErr(protocol.ErrKindParserError))
}

// payloadTooBig bounds every body bearing message, MSG included, so a
// client can not make the server buffer a body it would refuse anyway.
func (t *TCPConn) payloadTooBig(m protocol.Message) bool {
	if m == nil {
		return false
	}

	size, ok := protocol.BodySize(m)
	return ok && int64(size) > t.server.info.MaxPayload
}

func (t *TCPConn) handle(m protocol.Message) error {
	t.server.metrics.opsTotal.WithLabelValues(m.Op().String()).Inc()

	if t.server.trace {
		t.log.Debug("Received", zap.Stringer("op", m.Op()))
	}

	switch c := m.(type) {
	case *protocol.Connect:
		t.verbose.Store(c.Verbose)
		t.log.Debug("Client connected",
			zap.String("name", c.Name),
			zap.String("lang", c.Lang),
			zap.String("version", c.Version))

		return t.ok()

	case *protocol.Ping:
		return t.enqueue(protocol.PongTerminal)

	case *protocol.Pong:
		return nil

	case *protocol.Sub:
		err := t.server.store.Subscribe(t.ctx, storage.Subscription{
			Owner:   t.id,
			SID:     c.SID,
			Subject: string(c.Subject),
			Queue:   string(c.QueueGroup),
		})

		if errors.Is(err, storage.ErrInvalidSubject) {
			return t.sendErr(protocol.NewErr(protocol.ErrKindInvalidSubject))
		}

		if err != nil {
			t.log.Warn("Failed to subscribe", zap.Uint64("sid", c.SID), zap.Error(err))
			return nil
		}

		return t.ok()

	case *protocol.Unsub:
		var max uint64
		if c.MaxMessages != nil {
			max = *c.MaxMessages
		}

		err := t.server.store.Unsubscribe(t.ctx, t.id, c.SID, max)
		if err != nil && !errors.Is(err, storage.ErrUnknownSID) {
			t.log.Warn("Failed to unsubscribe", zap.Uint64("sid", c.SID), zap.Error(err))
		}

		return t.ok()

	case *protocol.Pub:
		if !storage.ValidSubject(string(c.Subject), false) {
			return t.sendErr(protocol.NewErr(protocol.ErrKindInvalidSubject))
		}

		if err := t.server.route(c); err != nil {
			t.log.Warn("Failed to deliver to every subscriber",
				zap.ByteString("subject", c.Subject),
				zap.Error(err))
		}

		return t.ok()

	default:
		// INFO, MSG, +OK and -ERR only ever flow from server to client.
		return t.sendErr(protocol.NewErr(protocol.ErrKindUnknownProtocolOperation))
	}
}

func (t *TCPConn) ok() error {
	if !t.verbose.Load() {
		return nil
	}

	return t.enqueue(protocol.OkTerminal)
}

func (t *TCPConn) sendErr(e *protocol.Err) error {
	t.server.metrics.errorsTotal.WithLabelValues(e.Message()).Inc()
	return t.enqueueMessage(e)
}

// fatal sends e and then closes the connection.
func (t *TCPConn) fatal(e *protocol.Err) error {
	if err := t.sendErr(e); err != nil {
		return err
	}

	return fmt.Errorf("%w: %s", ErrClientClosed, e.Message())
}

func (t *TCPConn) enqueueMessage(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	return t.enqueue(frame)
}

// enqueue hands a complete frame to the write loop. A connection whose queue
// is full is closed as a slow consumer.
func (t *TCPConn) enqueue(frame []byte) error {
	if t.ctx.Err() != nil {
		return ErrConnClosed
	}

	select {
	case t.writeQueue <- frame:
		return nil

	default:
		t.server.metrics.slowConsumers.Inc()
		t.log.Warn("Slow consumer, closing connection")
		t.cancel()

		return ErrSlowConsumer
	}
}

func (t *TCPConn) writeLoop() error {
	log := t.log.Named("writeLoop")

	defer func() {
		if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to close connection cleanly", zap.Error(err))
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			// Flush whatever was queued before the connection was closed.
			return t.flush(nil)

		case frame := <-t.writeQueue:
			if err := t.flush(frame); err != nil {
				log.Warn("Failed to write to client", zap.Error(err))
				t.cancel()
				return err
			}
		}
	}
}

// flush writes first, if any, together with every frame waiting in the queue.
func (t *TCPConn) flush(first []byte) error {
	var frames net.Buffers
	if first != nil {
		frames = append(frames, first)
	}

	for {
		select {
		case frame := <-t.writeQueue:
			frames = append(frames, frame)
			continue
		default:
		}

		break
	}

	if len(frames) == 0 {
		return nil
	}

	_, err := frames.WriteTo(t.conn)
	return err
}
