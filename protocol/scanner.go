package protocol

import "math"

// maxSlots is the largest number of whitespace separated fields any grammar
// accepts after its op token (MSG: subject sid reply-to size).
const maxSlots = 4

// scanner is a cursor over a complete control line. It never copies, every
// token it returns aliases the scanned line.
type scanner struct {
	line []byte
	pos  int
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (s *scanner) done() bool {
	return s.pos >= len(s.line)
}

// rest returns the unscanned remainder of the line.
func (s *scanner) rest() []byte {
	return s.line[s.pos:]
}

// skipSpace consumes zero or more spaces or tabs and returns how many it consumed.
func (s *scanner) skipSpace() int {
	start := s.pos
	for s.pos < len(s.line) && isSpace(s.line[s.pos]) {
		s.pos++
	}

	return s.pos - start
}

// skipSpace1 consumes one or more spaces or tabs.
func (s *scanner) skipSpace1() error {
	if s.skipSpace() == 0 {
		return ErrMissingWhitespace
	}

	return nil
}

// token consumes a maximal run of non whitespace bytes. The result is empty
// when the cursor sits on whitespace or at the end of the line. Its capacity
// is clipped so an append by the consumer can never write into the line.
func (s *scanner) token() []byte {
	start := s.pos
	for s.pos < len(s.line) && !isSpace(s.line[s.pos]) {
		s.pos++
	}

	return s.line[start:s.pos:s.pos]
}

// literal consumes exactly the byte b.
func (s *scanner) literal(b byte) error {
	if s.done() || s.line[s.pos] != b {
		return ErrMissingField
	}

	s.pos++
	return nil
}

// slots holds the positional fields of a control line.
type slots struct {
	v [maxSlots][]byte
	n int
}

// fields reads the whitespace separated fields that follow the op token. It
// fails when fewer than min or more than max fields are present. Trailing
// whitespace is tolerated.
func (s *scanner) fields(min, max int) (slots, error) {
	var f slots

	if s.done() {
		if min > 0 {
			return f, ErrMissingField
		}

		return f, nil
	}

	if err := s.skipSpace1(); err != nil {
		return f, err
	}

	for !s.done() {
		if f.n == max {
			return f, ErrTooManyFields
		}

		f.v[f.n] = s.token()
		f.n++

		s.skipSpace()
	}

	if f.n < min {
		return f, ErrMissingField
	}

	return f, nil
}

// takeDigits consumes the leading run of ASCII digits in b and converts it
// as a base 10 unsigned integer. It returns the value and the number of bytes
// consumed, and fails when no digit is present or the value overflows.
func takeDigits(b []byte) (uint64, int, error) {
	var (
		n uint64
		i int
	)

	for i = 0; i < len(b) && isDigit(b[i]); i++ {
		d := uint64(b[i] - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0, i, ErrInvalidNumber
		}

		n = n*10 + d
	}

	if i == 0 {
		return 0, 0, ErrInvalidNumber
	}

	return n, i, nil
}

// parseUint converts a whole token into an unsigned integer.
func parseUint(token []byte) (uint64, error) {
	n, used, err := takeDigits(token)
	if err != nil {
		return 0, err
	}

	if used != len(token) {
		return 0, ErrInvalidNumber
	}

	return n, nil
}

// parseSize converts a whole token into a non negative int usable as a length.
func parseSize(token []byte) (int, error) {
	n, err := parseUint(token)
	if err != nil {
		return 0, err
	}

	if n > math.MaxInt32 {
		return 0, ErrInvalidNumber
	}

	return int(n), nil
}
