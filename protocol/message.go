package protocol

import (
	"bytes"
	"strconv"
)

var (
	Terminal = []byte("\r\n")

	OkTerminal   = []byte("+OK\r\n")
	PingTerminal = []byte("PING\r\n")
	PongTerminal = []byte("PONG\r\n")

	PrefixPub     = []byte("PUB ")
	PrefixMsg     = []byte("MSG ")
	PrefixSub     = []byte("SUB ")
	PrefixUnsub   = []byte("UNSUB ")
	PrefixInfo    = []byte("INFO ")
	PrefixConnect = []byte("CONNECT ")
	PrefixErr     = []byte("-ERR '")
)

// Message is a single protocol frame. The set of implementations is closed:
// *Ok, *Err, *Ping, *Pong, *Info, *Connect, *Pub, *Msg, *Sub and *Unsub.
//
// Byte slice fields of decoded messages alias the Buffer they were decoded
// from and must be treated as read only.
type Message interface {
	Op() Op

	appendTo(dst []byte) ([]byte, error)
}

type Ok struct{}

func (*Ok) Op() Op { return OpOk }

func (*Ok) appendTo(dst []byte) ([]byte, error) {
	return append(dst, OkTerminal...), nil
}

type Ping struct{}

func (*Ping) Op() Op { return OpPing }

func (*Ping) appendTo(dst []byte) ([]byte, error) {
	return append(dst, PingTerminal...), nil
}

type Pong struct{}

func (*Pong) Op() Op { return OpPong }

func (*Pong) appendTo(dst []byte) ([]byte, error) {
	return append(dst, PongTerminal...), nil
}

// Pub is a client publish: PUB <subject> [reply-to] <size>\r\n<payload>\r\n
type Pub struct {
	Subject []byte

	// ReplyTo is nil when the control line carries no reply subject.
	ReplyTo []byte

	// Size is the body length declared in the control line.
	Size int

	// Payload is nil until the decoder has read the body.
	Payload []byte
}

// NewPub builds a publish whose declared size matches payload.
func NewPub(subject, replyTo, payload []byte) *Pub {
	return &Pub{
		Subject: subject,
		ReplyTo: replyTo,
		Size:    len(payload),
		Payload: payload,
	}
}

func (*Pub) Op() Op { return OpPub }

func (p *Pub) appendTo(dst []byte) ([]byte, error) {
	if p.Size < 0 || len(p.Payload) != p.Size {
		return dst, ErrPayloadSizeMismatch
	}

	if !validToken(p.Subject) || !validOptionalToken(p.ReplyTo) {
		return dst, ErrInvalidToken
	}

	dst = append(dst, PrefixPub...)
	dst = append(dst, p.Subject...)

	if len(p.ReplyTo) > 0 {
		dst = append(dst, ' ')
		dst = append(dst, p.ReplyTo...)
	}

	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(p.Size), 10)
	dst = append(dst, Terminal...)
	dst = append(dst, p.Payload...)

	return append(dst, Terminal...), nil
}

// Msg is a message delivered by the server to a subscription:
// MSG <subject> <sid> [reply-to] <size>\r\n<payload>\r\n
type Msg struct {
	Subject []byte
	SID     uint64

	// ReplyTo is nil when the control line carries no reply subject.
	ReplyTo []byte

	// Size is the body length declared in the control line.
	Size int

	// Payload is nil until the decoder has read the body.
	Payload []byte
}

// NewMsg builds a delivery whose declared size matches payload.
func NewMsg(subject []byte, sid uint64, replyTo, payload []byte) *Msg {
	return &Msg{
		Subject: subject,
		SID:     sid,
		ReplyTo: replyTo,
		Size:    len(payload),
		Payload: payload,
	}
}

func (*Msg) Op() Op { return OpMsg }

func (m *Msg) appendTo(dst []byte) ([]byte, error) {
	if m.Size < 0 || len(m.Payload) != m.Size {
		return dst, ErrPayloadSizeMismatch
	}

	if !validToken(m.Subject) || !validOptionalToken(m.ReplyTo) {
		return dst, ErrInvalidToken
	}

	dst = append(dst, PrefixMsg...)
	dst = append(dst, m.Subject...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, m.SID, 10)

	if len(m.ReplyTo) > 0 {
		dst = append(dst, ' ')
		dst = append(dst, m.ReplyTo...)
	}

	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(m.Size), 10)
	dst = append(dst, Terminal...)
	dst = append(dst, m.Payload...)

	return append(dst, Terminal...), nil
}

// Sub registers interest in a subject: SUB <subject> [queue-group] <sid>
type Sub struct {
	Subject []byte

	// QueueGroup is nil for a plain subscription.
	QueueGroup []byte

	SID uint64
}

func NewSub(subject, queueGroup []byte, sid uint64) *Sub {
	return &Sub{Subject: subject, QueueGroup: queueGroup, SID: sid}
}

func (*Sub) Op() Op { return OpSub }

func (s *Sub) appendTo(dst []byte) ([]byte, error) {
	if !validToken(s.Subject) || !validOptionalToken(s.QueueGroup) {
		return dst, ErrInvalidToken
	}

	dst = append(dst, PrefixSub...)
	dst = append(dst, s.Subject...)

	if len(s.QueueGroup) > 0 {
		dst = append(dst, ' ')
		dst = append(dst, s.QueueGroup...)
	}

	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, s.SID, 10)

	return append(dst, Terminal...), nil
}

// Unsub drops a subscription: UNSUB <sid> [max-messages]
type Unsub struct {
	SID uint64

	// MaxMessages is nil when the subscription is dropped immediately.
	MaxMessages *uint64
}

func NewUnsub(sid uint64) *Unsub {
	return &Unsub{SID: sid}
}

// NewAutoUnsub drops the subscription once max messages have been delivered.
func NewAutoUnsub(sid, max uint64) *Unsub {
	return &Unsub{SID: sid, MaxMessages: &max}
}

func (*Unsub) Op() Op { return OpUnsub }

func (u *Unsub) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, PrefixUnsub...)
	dst = strconv.AppendUint(dst, u.SID, 10)

	if u.MaxMessages != nil {
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, *u.MaxMessages, 10)
	}

	return append(dst, Terminal...), nil
}

// validToken reports whether b survives as a single control line field.
func validToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}

	for _, c := range b {
		if isSpace(c) {
			return false
		}
	}

	return !bytes.Contains(b, Terminal)
}

// validOptionalToken accepts nil for an absent field. An empty but non nil
// field would be read back as absent.
func validOptionalToken(b []byte) bool {
	return b == nil || validToken(b)
}

// HasBody reports whether m is followed on the wire by a declared size body.
func HasBody(m Message) bool {
	switch m.(type) {
	case *Pub, *Msg:
		return true
	default:
		return false
	}
}

// BodySize returns the declared body size of a PUB or MSG.
func BodySize(m Message) (int, bool) {
	switch v := m.(type) {
	case *Pub:
		return v.Size, true
	case *Msg:
		return v.Size, true
	default:
		return 0, false
	}
}

func attachBody(m Message, body []byte) {
	switch v := m.(type) {
	case *Pub:
		v.Payload = body
	case *Msg:
		v.Payload = body
	}
}

// Ptr returns a pointer to v, handy for the optional fields of Info and Connect.
func Ptr[T any](v T) *T {
	return &v
}

var _ Message = (*Ok)(nil)
var _ Message = (*Err)(nil)
var _ Message = (*Ping)(nil)
var _ Message = (*Pong)(nil)
var _ Message = (*Info)(nil)
var _ Message = (*Connect)(nil)
var _ Message = (*Pub)(nil)
var _ Message = (*Msg)(nil)
var _ Message = (*Sub)(nil)
var _ Message = (*Unsub)(nil)
