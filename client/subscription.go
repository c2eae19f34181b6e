package client

import (
	"sync"

	"github.com/bmartynov/nats-codec/protocol"
)

// Subscription receives the messages published to its subject.
type Subscription struct {
	conn *Conn

	SID     uint64
	Subject string
	Queue   string

	mu        sync.Mutex
	msgs      chan *protocol.Msg
	closed    bool
	max       uint64
	delivered uint64
}

// Msgs is closed once the subscription has been dropped.
func (s *Subscription) Msgs() <-chan *protocol.Msg {
	return s.msgs
}

// Unsubscribe drops the subscription at once.
func (s *Subscription) Unsubscribe() error {
	if s.isClosed() {
		return ErrUnsubscribed
	}

	s.conn.removeSub(s.SID)

	return s.conn.write(protocol.NewUnsub(s.SID))
}

// AutoUnsubscribe drops the subscription once max messages have been received in total.
func (s *Subscription) AutoUnsubscribe(max uint64) error {
	if max == 0 {
		return ErrInvalidMaxMsg
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrUnsubscribed
	}

	s.max = max
	done := s.delivered >= max
	s.mu.Unlock()

	if done {
		s.conn.removeSub(s.SID)
	}

	return s.conn.write(protocol.NewAutoUnsub(s.SID, max))
}

// deliver hands msg to the reader without blocking and reports whether it was accepted.
func (s *Subscription) deliver(msg *protocol.Msg) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	s.delivered++

	select {
	case s.msgs <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscription) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.max > 0 && s.delivered >= s.max
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
