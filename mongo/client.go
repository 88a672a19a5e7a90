// Package mongo exposes database and collection handles over a single
// authenticated connection.
package mongo

import (
	"context"

	"github.com/colemancda/MongoKitten/auth"
	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/core"
)

// Client owns a connection to a server.
type Client struct {
	conn conn.Connection
}

// ClientOption configures a client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	authenticator auth.Authenticator
	connOpts      []conn.Option
}

// WithAuthenticator sets the authenticator run against the connection
// before it is handed out.
func WithAuthenticator(authenticator auth.Authenticator) ClientOption {
	return func(c *clientConfig) {
		c.authenticator = authenticator
	}
}

// WithConnectionOptions forwards options to the underlying connection.
func WithConnectionOptions(opts ...conn.Option) ClientOption {
	return func(c *clientConfig) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

// Connect dials an endpoint, handshakes, and authenticates if an
// authenticator was supplied. The returned client is ready for
// commands.
func Connect(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := conn.Dial
	if cfg.authenticator != nil {
		dialer = auth.NewDialer(dialer, cfg.authenticator)
	}

	c, err := dialer(ctx, conn.Endpoint(endpoint), cfg.connOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{conn: c}, nil
}

// NewClient wraps an already-established connection.
func NewClient(c conn.Connection) *Client {
	return &Client{conn: c}
}

// Database returns a handle for a database. Construction is cheap and
// performs no I/O.
func (c *Client) Database(name string) *Database {
	return NewDatabase(c.conn, name)
}

// Connection returns the underlying connection.
func (c *Client) Connection() conn.Connection {
	return c.conn
}

// IsMaster runs the ismaster command.
func (c *Client) IsMaster(ctx context.Context) (*core.IsMasterResult, error) {
	return core.IsMaster(ctx, c.conn)
}

// Disconnect closes the underlying connection, failing any commands
// still in flight.
func (c *Client) Disconnect() error {
	return c.conn.Close()
}
