package protocol

import "fmt"

// Op is the protocol verb that leads every control line.
type Op uint8

const (
	OpUnknown Op = iota
	OpPub
	OpMsg
	OpOk
	OpErr
	OpPing
	OpPong
	OpInfo
	OpConnect
	OpSub
	OpUnsub
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpPub:     "PUB",
	OpMsg:     "MSG",
	OpOk:      "+OK",
	OpErr:     "-ERR",
	OpPing:    "PING",
	OpPong:    "PONG",
	OpInfo:    "INFO",
	OpConnect: "CONNECT",
	OpSub:     "SUB",
	OpUnsub:   "UNSUB",
}

// String returns the canonical upper case wire token for the op.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}

	return opNames[OpUnknown]
}

// lower folds an ASCII letter to lower case. Non letters are returned as is.
func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}

	return b
}

// equalFold reports whether token equals the lower case word, ignoring ASCII case.
func equalFold(token []byte, word string) bool {
	if len(token) != len(word) {
		return false
	}

	for i := 0; i < len(token); i++ {
		if lower(token[i]) != word[i] {
			return false
		}
	}

	return true
}

// ParseOp classifies the leading token of a control line. Matching is case
// insensitive. PUB and MSG are checked first as they dominate pub/sub traffic.
func ParseOp(token []byte) (Op, error) {
	switch len(token) {
	case 3:
		switch {
		case equalFold(token, "pub"):
			return OpPub, nil
		case equalFold(token, "msg"):
			return OpMsg, nil
		case equalFold(token, "sub"):
			return OpSub, nil
		case equalFold(token, "+ok"):
			return OpOk, nil
		}

	case 4:
		switch {
		case equalFold(token, "ping"):
			return OpPing, nil
		case equalFold(token, "pong"):
			return OpPong, nil
		case equalFold(token, "info"):
			return OpInfo, nil
		case equalFold(token, "-err"):
			return OpErr, nil
		}

	case 5:
		if equalFold(token, "unsub") {
			return OpUnsub, nil
		}

	case 7:
		if equalFold(token, "connect") {
			return OpConnect, nil
		}
	}

	return OpUnknown, fmt.Errorf("Failed to classify '%s': %w", string(token), ErrUnknownOperation)
}
