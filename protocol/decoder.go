package protocol

import (
	"bytes"
)

// DefaultMaxControlLine bounds the size of a control line unless WithMaxControlLine says otherwise.
const DefaultMaxControlLine = 4096

// State is the position of a Decoder within a frame.
type State uint8

const (
	// StateControlLine waits for a complete CRLF terminated control line.
	StateControlLine State = iota

	// StateBody waits for the declared body of a PUB or MSG plus its CRLF.
	StateBody
)

func (s State) String() string {
	switch s {
	case StateControlLine:
		return "control-line"
	case StateBody:
		return "body"
	default:
		return "unknown"
	}
}

type DecoderOption func(*Decoder)

// WithMaxControlLine bounds the length of a control line. Zero or less disables the check.
func WithMaxControlLine(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxControlLine = n
	}
}

// Decoder turns the bytes of one stream into messages. It holds the parse
// state between calls and must not be shared between goroutines or streams.
type Decoder struct {
	state State

	// pending is the PUB or MSG whose body is being waited for.
	pending Message
	size    int

	maxControlLine int
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		state:          StateControlLine,
		maxControlLine: DefaultMaxControlLine,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// State returns the current decoder state.
func (d *Decoder) State() State {
	return d.state
}

// Pending returns the header of the PUB or MSG waiting for its body, or nil.
func (d *Decoder) Pending() Message {
	return d.pending
}

// Decode consumes at most one message from the front of buf.
//
// It returns the message once one is complete. When buf does not yet hold a
// complete frame it returns a nil message and a nil error, leaves the unread
// bytes in place and expects to be called again after more bytes have been
// appended. Any error means the stream is malformed and should be closed.
func (d *Decoder) Decode(buf *Buffer) (Message, error) {
	for {
		switch d.state {
		case StateControlLine:
			data := buf.Bytes()

			idx := bytes.Index(data, Terminal)
			if idx < 0 {
				// A line this long can never become valid. The +1 leaves room for
				// a CR that is still waiting for its LF.
				if d.maxControlLine > 0 && len(data) > d.maxControlLine+1 {
					return nil, ErrControlLineTooLong
				}

				return nil, nil
			}

			if d.maxControlLine > 0 && idx > d.maxControlLine {
				return nil, ErrControlLineTooLong
			}

			line := data[:idx:idx]
			buf.Advance(idx + len(Terminal))

			m, err := ParseControlLine(line)
			if err != nil {
				return nil, err
			}

			size, ok := BodySize(m)
			if !ok {
				return m, nil
			}

			d.pending, d.size, d.state = m, size, StateBody

		case StateBody:
			data := buf.Bytes()

			// Subtract from the buffered length, d.size+2 may overflow an int.
			if len(data)-len(Terminal) < d.size {
				return nil, nil
			}

			if data[d.size] != '\r' || data[d.size+1] != '\n' {
				return nil, ErrMissingPayloadTerminator
			}

			body := data[:d.size:d.size]
			buf.Advance(d.size + len(Terminal))

			m := d.pending
			attachBody(m, body)

			d.pending, d.size, d.state = nil, 0, StateControlLine

			return m, nil
		}
	}
}
