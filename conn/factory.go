package conn

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Factory creates a connection.
type Factory func(context.Context) (Connection, error)

// DialerFactory returns a Factory that uses a dialer.
func DialerFactory(dialer Dialer, endpoint Endpoint, opts ...Option) Factory {
	return func(ctx context.Context) (Connection, error) {
		c, err := dialer(ctx, endpoint, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed dialing %s", endpoint)
		}
		return c, nil
	}
}

// LimitedFactory returns a Factory that is constrained by a resource
// limit.
func LimitedFactory(max int64, factory Factory) Factory {
	permits := semaphore.NewWeighted(max)
	return func(ctx context.Context) (Connection, error) {
		err := permits.Acquire(ctx, 1)
		if err != nil {
			return nil, err
		}

		c, err := factory(ctx)
		if err != nil {
			permits.Release(1)
			return nil, err
		}
		return &limitedFactoryConn{c, permits}, nil
	}
}

type limitedFactoryConn struct {
	Connection
	permits *semaphore.Weighted
}

func (c *limitedFactoryConn) Close() error {
	c.permits.Release(1)
	return c.Connection.Close()
}

// PoolFactory creates a Factory from a pool.
func PoolFactory(p *Pool) Factory {
	return func(ctx context.Context) (Connection, error) {
		return p.Get(ctx)
	}
}
