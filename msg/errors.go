package msg

import "github.com/colemancda/MongoKitten/internal"

// ProtocolError is a malformed or unexpected wire frame. It is fatal to
// the connection that observed it.
type ProtocolError struct {
	message string
	inner   error
}

func newProtocolError(inner error, message string) error {
	return &ProtocolError{message: message, inner: inner}
}

// Message gets the basic error message.
func (e *ProtocolError) Message() string {
	return e.message
}

// Error gets a rolled-up error message.
func (e *ProtocolError) Error() string {
	return internal.RolledUpErrorMessage(e)
}

// Inner gets the inner error if one exists.
func (e *ProtocolError) Inner() error {
	return e.inner
}

func (e *ProtocolError) Unwrap() error {
	return e.inner
}
