package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// DefaultMaxPayload is the max_payload an Info carries unless told otherwise.
const DefaultMaxPayload = 1024

// Info is the server handshake sent when a client connects: INFO <json>
//
// Pointer fields are optional. They are left out of the encoded JSON when nil
// and stay nil when absent from a decoded one, so an empty connect_urls list
// is kept apart from a missing one.
type Info struct {
	ServerID     string    `json:"server_id"`
	Version      string    `json:"version"`
	Proto        *int      `json:"proto,omitempty"`
	Go           string    `json:"go"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	AuthRequired bool      `json:"auth_required"`
	TLSRequired  bool      `json:"tls_required"`
	MaxPayload   int64     `json:"max_payload"`
	ClientID     *uint64   `json:"client_id,omitempty"`
	ConnectURLs  *[]string `json:"connect_urls,omitempty"`
	Nonce        *string   `json:"nonce,omitempty"`
}

// infoRequired lists the keys every INFO blob must carry.
var infoRequired = []string{"server_id", "version", "go", "host", "port"}

func NewInfo() *Info {
	return &Info{MaxPayload: DefaultMaxPayload}
}

func (*Info) Op() Op { return OpInfo }

func (i *Info) appendTo(dst []byte) ([]byte, error) {
	return appendJSON(dst, PrefixInfo, i)
}

func parseInfo(blob []byte) (*Info, error) {
	if err := validateJSON(blob, infoRequired); err != nil {
		return nil, err
	}

	info := NewInfo()
	if err := sonic.Unmarshal(blob, info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	return info, nil
}

// validateJSON checks that blob is a single JSON object holding every key in required.
func validateJSON(blob []byte, required []string) error {
	if !gjson.ValidBytes(blob) {
		return ErrInvalidJSON
	}

	if !gjson.ParseBytes(blob).IsObject() {
		return ErrInvalidJSON
	}

	for _, key := range required {
		if !gjson.GetBytes(blob, key).Exists() {
			return fmt.Errorf("%w: %s", ErrMissingJSONField, key)
		}
	}

	return nil
}

func appendJSON(dst, prefix []byte, v interface{}) ([]byte, error) {
	blob, err := sonic.Marshal(v)
	if err != nil {
		return dst, fmt.Errorf("%w: %v", ErrEncodeJSON, err)
	}

	dst = append(dst, prefix...)
	dst = append(dst, blob...)

	return append(dst, Terminal...), nil
}
