package transport

import (
	"go.uber.org/zap"

	"github.com/bmartynov/nats-codec/storage"
)

const (
	DefaultMaxPayload = 1024 * 1024
	DefaultQueueSize  = 1024
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, zero picks a free port
	Port int

	// Reuseport controls setting SO_REUSEPORT, it is required for more than one listener
	Reuseport bool

	NumListeners int

	// ServerName is sent as the server_id of INFO, a random one is picked when empty
	ServerName string

	// MaxPayload is the largest PUB body accepted, advertised in INFO
	MaxPayload int64

	// MaxControlLine bounds the length of a control line
	MaxControlLine int

	// QueueSize is the number of frames buffered per connection before it is
	// treated as a slow consumer
	QueueSize int

	// Trace logs every decoded message. This is only useful in local debugging
	Trace bool

	Store storage.Store

	Metrics *Metrics

	Log *zap.Logger
}

func (o *Options) setDefaults() {
	if o.MaxPayload <= 0 {
		o.MaxPayload = DefaultMaxPayload
	}

	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}

	if o.Store == nil {
		o.Store = storage.NewInmemoryStore()
	}

	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}
