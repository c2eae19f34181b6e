package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrUnknownOperation         = errors.New("Unknown protocol operation could not be parsed")
	ErrMissingWhitespace        = errors.New("Control line is malformed, it appears to be missing whitespace between fields")
	ErrMissingField             = errors.New("Control line is malformed, it appears to be missing a required field")
	ErrTooManyFields            = errors.New("Control line is malformed, it carries more fields than the operation accepts")
	ErrInvalidNumber            = errors.New("Control line is malformed, a numeric field is not a base 10 unsigned integer")
	ErrMalformedError           = errors.New("Err line is malformed, the error text must be wrapped in single quotes")
	ErrInvalidJSON              = errors.New("Structured payload is not a valid JSON object")
	ErrMissingJSONField         = errors.New("Structured payload is missing a required field")
	ErrControlLineTooLong       = errors.New("Control line exceeds the maximum control line size")
	ErrMissingPayloadTerminator = errors.New("Payload is not followed by CRLF")
	ErrPayloadSizeMismatch      = errors.New("Payload length does not match the declared size")
	ErrInvalidToken             = errors.New("Control line field is empty or contains whitespace or CRLF")
	ErrEncodeJSON               = errors.New("Structured payload could not be encoded")
)

// ParseControlLine parses one complete control line, without its trailing
// CRLF, into a message. PUB and MSG come back without their payload, it is up
// to the caller to read the declared number of body bytes.
//
// The returned message aliases line, no bytes are copied.
func ParseControlLine(line []byte) (Message, error) {
	s := scanner{line: line}

	op, err := ParseOp(s.token())
	if err != nil {
		return nil, err
	}

	var m Message

	switch op {
	// hottest
	case OpPub:
		m, err = parsePub(&s)
	case OpMsg:
		m, err = parseMsg(&s)

	case OpOk:
		m, err = &Ok{}, parseBare(&s)
	case OpErr:
		m, err = parseErr(&s)
	case OpPing:
		m, err = &Ping{}, parseBare(&s)
	case OpPong:
		m, err = &Pong{}, parseBare(&s)
	case OpInfo:
		m, err = parseJSONOp(&s, func(blob []byte) (Message, error) { return parseInfo(blob) })
	case OpConnect:
		m, err = parseJSONOp(&s, func(blob []byte) (Message, error) { return parseConnect(blob) })
	case OpSub:
		m, err = parseSub(&s)
	case OpUnsub:
		m, err = parseUnsub(&s)
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to parse %s '%s': %w", op, string(line), err)
	}

	return m, nil
}

// parseBare checks that +OK, PING and PONG carry nothing but whitespace.
func parseBare(s *scanner) error {
	_, err := s.fields(0, 0)
	return err
}

// PUB <subject> [reply-to] <size>
func parsePub(s *scanner) (Message, error) {
	f, err := s.fields(2, 3)
	if err != nil {
		return nil, err
	}

	size, err := parseSize(f.v[f.n-1])
	if err != nil {
		return nil, err
	}

	pub := &Pub{Subject: f.v[0], Size: size}
	if f.n == 3 {
		pub.ReplyTo = f.v[1]
	}

	return pub, nil
}

// MSG <subject> <sid> [reply-to] <size>
func parseMsg(s *scanner) (Message, error) {
	f, err := s.fields(3, 4)
	if err != nil {
		return nil, err
	}

	sid, err := parseUint(f.v[1])
	if err != nil {
		return nil, err
	}

	size, err := parseSize(f.v[f.n-1])
	if err != nil {
		return nil, err
	}

	msg := &Msg{Subject: f.v[0], SID: sid, Size: size}
	if f.n == 4 {
		msg.ReplyTo = f.v[2]
	}

	return msg, nil
}

// SUB <subject> [queue-group] <sid>
func parseSub(s *scanner) (Message, error) {
	f, err := s.fields(2, 3)
	if err != nil {
		return nil, err
	}

	sid, err := parseUint(f.v[f.n-1])
	if err != nil {
		return nil, err
	}

	sub := &Sub{Subject: f.v[0], SID: sid}
	if f.n == 3 {
		sub.QueueGroup = f.v[1]
	}

	return sub, nil
}

// UNSUB <sid> [max-messages]
func parseUnsub(s *scanner) (Message, error) {
	f, err := s.fields(1, 2)
	if err != nil {
		return nil, err
	}

	sid, err := parseUint(f.v[0])
	if err != nil {
		return nil, err
	}

	unsub := &Unsub{SID: sid}

	if f.n == 2 {
		max, err := parseUint(f.v[1])
		if err != nil {
			return nil, err
		}

		unsub.MaxMessages = &max
	}

	return unsub, nil
}

// -ERR '<error-text>'
func parseErr(s *scanner) (Message, error) {
	if s.done() {
		return nil, ErrMissingField
	}

	if err := s.skipSpace1(); err != nil {
		return nil, err
	}

	if err := s.literal('\''); err != nil {
		return nil, ErrMalformedError
	}

	// The text may itself hold quotes, it runs up to the last one on the line.
	rest := s.rest()
	end := bytes.LastIndexByte(rest, '\'')
	if end < 0 {
		return nil, ErrMalformedError
	}

	if len(bytes.Trim(rest[end+1:], " \t")) != 0 {
		return nil, ErrMalformedError
	}

	return ParseErrText(rest[:end]), nil
}

// INFO <json> and CONNECT <json>
func parseJSONOp(s *scanner, decode func([]byte) (Message, error)) (Message, error) {
	if s.done() {
		return nil, ErrMissingField
	}

	if err := s.skipSpace1(); err != nil {
		return nil, err
	}

	if s.done() {
		return nil, ErrMissingField
	}

	return decode(s.rest())
}
