package protocol

import (
	"bytes"
)

// ErrorKind identifies a known server error in the -ERR catalog.
type ErrorKind uint8

const (
	// ErrKindUnknown is any error text outside the catalog. The text is kept verbatim.
	ErrKindUnknown ErrorKind = iota
	ErrKindUnknownProtocolOperation
	ErrKindAttemptedToConnectToRoutePort
	ErrKindAuthorizationViolation
	ErrKindAuthorizationTimeout
	ErrKindInvalidClientProtocol
	ErrKindMaximumControlLineExceeded
	ErrKindParserError
	ErrKindSecureConnectionTLSRequired
	ErrKindStaleConnection
	ErrKindMaximumConnectionsExceeded
	ErrKindSlowConsumer
	ErrKindMaximumPayloadViolation
	ErrKindInvalidSubject

	// The permission violations carry the offending subject after the catalog prefix.
	ErrKindPermissionsViolationForSubscription
	ErrKindPermissionsViolationForPublish
)

// errorCatalog holds the fixed text (or prefix, for the permission kinds) of
// every known error, indexed by kind.
var errorCatalog = [...][]byte{
	ErrKindUnknown:                             nil,
	ErrKindUnknownProtocolOperation:            []byte("Unknown Protocol Operation"),
	ErrKindAttemptedToConnectToRoutePort:       []byte("Attempted To Connect To Route Port"),
	ErrKindAuthorizationViolation:              []byte("Authorization Violation"),
	ErrKindAuthorizationTimeout:                []byte("Authorization Timeout"),
	ErrKindInvalidClientProtocol:               []byte("Invalid Client Protocol"),
	ErrKindMaximumControlLineExceeded:          []byte("Maximum Control Line Exceeded"),
	ErrKindParserError:                         []byte("Parser Error"),
	ErrKindSecureConnectionTLSRequired:         []byte("Secure Connection - TLS Required"),
	ErrKindStaleConnection:                     []byte("Stale Connection"),
	ErrKindMaximumConnectionsExceeded:          []byte("Maximum Connections Exceeded"),
	ErrKindSlowConsumer:                        []byte("Slow Consumer"),
	ErrKindMaximumPayloadViolation:             []byte("Maximum Payload Violation"),
	ErrKindInvalidSubject:                      []byte("Invalid Subject"),
	ErrKindPermissionsViolationForSubscription: []byte("Permissions Violation for Subscription to "),
	ErrKindPermissionsViolationForPublish:      []byte("Permissions Violation for Publish to "),
}

// Err is a server error: -ERR '<text>'
type Err struct {
	Kind ErrorKind

	// Subject is the subject named by a permission violation.
	Subject string

	// Text is the verbatim error text of an ErrKindUnknown error.
	Text string
}

// NewErr builds an error of a fixed catalog kind.
func NewErr(kind ErrorKind) *Err {
	return &Err{Kind: kind}
}

func PermissionsViolationForSubscription(subject string) *Err {
	return &Err{Kind: ErrKindPermissionsViolationForSubscription, Subject: subject}
}

func PermissionsViolationForPublish(subject string) *Err {
	return &Err{Kind: ErrKindPermissionsViolationForPublish, Subject: subject}
}

// UnknownErr wraps error text that is not part of the catalog.
func UnknownErr(text string) *Err {
	return &Err{Kind: ErrKindUnknown, Text: text}
}

func (*Err) Op() Op { return OpErr }

// Message returns the error text as it appears between the quotes on the wire.
func (e *Err) Message() string {
	return string(e.appendText(nil))
}

// Error makes a server error usable as a Go error.
func (e *Err) Error() string {
	return "nats: " + e.Message()
}

func (e *Err) appendText(dst []byte) []byte {
	switch e.Kind {
	case ErrKindUnknown:
		return append(dst, e.Text...)

	case ErrKindPermissionsViolationForSubscription, ErrKindPermissionsViolationForPublish:
		dst = append(dst, errorCatalog[e.Kind]...)
		return append(dst, e.Subject...)

	default:
		if int(e.Kind) >= len(errorCatalog) {
			return append(dst, e.Text...)
		}

		return append(dst, errorCatalog[e.Kind]...)
	}
}

func (e *Err) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, PrefixErr...)
	dst = e.appendText(dst)
	dst = append(dst, '\'')

	return append(dst, Terminal...), nil
}

// ParseErrText maps the text of an -ERR line onto the catalog. Text that
// matches no catalog entry becomes an ErrKindUnknown error holding it verbatim.
func ParseErrText(text []byte) *Err {
	for kind := ErrKindUnknownProtocolOperation; int(kind) < len(errorCatalog); kind++ {
		prefix := errorCatalog[kind]
		if !bytes.HasPrefix(text, prefix) {
			continue
		}

		switch kind {
		case ErrKindPermissionsViolationForSubscription, ErrKindPermissionsViolationForPublish:
			return &Err{Kind: kind, Subject: string(text[len(prefix):])}
		default:
			return &Err{Kind: kind}
		}
	}

	return UnknownErr(string(text))
}
