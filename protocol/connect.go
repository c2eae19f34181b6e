package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Connect is the client handshake: CONNECT <json>
type Connect struct {
	Verbose     bool    `json:"verbose"`
	Pedantic    bool    `json:"pedantic"`
	TLSRequired bool    `json:"tls_required"`
	AuthToken   *string `json:"auth_token,omitempty"`
	User        *string `json:"user,omitempty"`
	Pass        *string `json:"pass,omitempty"`
	Lang        string  `json:"lang"`
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Protocol    *int    `json:"protocol,omitempty"`
	Sig         *string `json:"sig,omitempty"`
	JWT         *string `json:"jwt,omitempty"`
}

// connectRequired lists the keys every CONNECT blob must carry.
var connectRequired = []string{"lang", "name", "version"}

func (*Connect) Op() Op { return OpConnect }

func (c *Connect) appendTo(dst []byte) ([]byte, error) {
	return appendJSON(dst, PrefixConnect, c)
}

func parseConnect(blob []byte) (*Connect, error) {
	if err := validateJSON(blob, connectRequired); err != nil {
		return nil, err
	}

	var connect Connect
	if err := sonic.Unmarshal(blob, &connect); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	return &connect, nil
}
