package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/colemancda/MongoKitten/conn"
)

const defaultAuthDB = "admin"

// These errors identify the way an authentication attempt failed.
var (
	// ErrIncorrectCredentials occurs when the server rejects the
	// presented credentials.
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	// ErrInvalidServerNonce occurs when the server's nonce does not
	// extend the nonce the client sent.
	ErrInvalidServerNonce = errors.New("invalid server nonce")
	// ErrInvalidServerSignature occurs when the server's signature
	// does not match the locally computed one.
	ErrInvalidServerSignature = errors.New("invalid server signature")
	// ErrMalformedBase64 occurs when a payload field does not decode
	// as base64.
	ErrMalformedBase64 = errors.New("unable to decode base64 payload")
	// ErrUnexpectedServerPayload occurs when a payload is missing a
	// required field or carries one that makes no sense for the
	// conversation state.
	ErrUnexpectedServerPayload = errors.New("unexpected server payload")
)

// Authenticator handles authenticating a connection.
type Authenticator interface {
	// Name is the mechanism name of the authenticator.
	Name() string
	// Auth authenticates the connection.
	Auth(context.Context, conn.Connection) error
}

// NewDialer returns a connection dialer that authenticates the
// connection before handing it out.
func NewDialer(dialer conn.Dialer, authenticator Authenticator) conn.Dialer {
	return func(ctx context.Context, endpoint conn.Endpoint, opts ...conn.Option) (conn.Connection, error) {
		return Dial(ctx, dialer, authenticator, endpoint, opts...)
	}
}

// Dial opens a connection and authenticates it. Authentication runs to
// completion before the connection is returned; a connection that
// fails to authenticate is closed.
func Dial(ctx context.Context, dialer conn.Dialer, authenticator Authenticator, endpoint conn.Endpoint, opts ...conn.Option) (conn.Connection, error) {
	c, err := dialer(ctx, endpoint, opts...)
	if err != nil {
		if c != nil {
			c.Close()
		}
		return nil, err
	}

	err = authenticator.Auth(ctx, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func newError(err error, mech string) error {
	return &Error{
		message: fmt.Sprintf("unable to authenticate using mechanism \"%s\"", mech),
		inner:   err,
	}
}

// Error is an error that occurred during authentication.
type Error struct {
	message string
	inner   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.message, e.inner)
}

// Inner returns the wrapped error.
func (e *Error) Inner() error {
	return e.inner
}

func (e *Error) Unwrap() error {
	return e.inner
}

// Message returns the message.
func (e *Error) Message() string {
	return e.message
}

// translateCommandError maps a server-side authentication failure onto
// ErrIncorrectCredentials so callers can test for it.
func translateCommandError(err error) error {
	var commandErr *conn.CommandError
	if errors.As(err, &commandErr) && commandErr.Code == 18 {
		return fmt.Errorf("%w: %s", ErrIncorrectCredentials, commandErr.Message)
	}
	return err
}
