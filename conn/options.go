package conn

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/colemancda/MongoKitten/msg"
)

func newConfig(opts ...Option) *config {
	cfg := &config{
		codec:  msg.NewWireProtocolCodec(),
		dialer: DialEndpoint,
		logger: logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// Option configures a connection.
type Option func(*config)

type config struct {
	appName     string
	codec       msg.Codec
	dialer      EndpointDialer
	compressors []string
	idleTimeout time.Duration
	lifeTimeout time.Duration
	logger      *logrus.Logger
}

// WithAppName sets the application name which gets
// sent to the server during the handshake.
func WithAppName(name string) Option {
	return func(c *config) {
		c.appName = name
	}
}

// WithCodec sets the codec to use to encode and
// decode messages.
func WithCodec(codec msg.Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithEndpointDialer defines the dialer for endpoints. Use this
// configuration option to enable things like TLS.
func WithEndpointDialer(dialer EndpointDialer) Option {
	return func(c *config) {
		c.dialer = dialer
	}
}

// WithCompressors sets the wire compressor names offered to the server
// during the handshake, in preference order. Valid names are "snappy",
// "zlib", and "zstd".
func WithCompressors(names ...string) Option {
	return func(c *config) {
		c.compressors = names
	}
}

// WithIdleTimeout sets the duration a connection may remain unused
// before it is considered expired.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		c.idleTimeout = d
	}
}

// WithLifeTimeout sets the duration a connection may remain open
// before it is considered expired.
func WithLifeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.lifeTimeout = d
	}
}

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
