package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCursorClosed occurs when iterating a cursor that was
	// explicitly closed before exhaustion.
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrNothingToDo occurs when a write operation carries no
	// statements or an update document sets nothing.
	ErrNothingToDo = errors.New("nothing to do")
	// ErrNoDocuments occurs when a single-document read matches
	// nothing.
	ErrNoDocuments = errors.New("no documents in result")
)

// WriteError is a per-statement failure in a batched write.
type WriteError struct {
	Index   int32  `bson:"index"`
	Code    int32  `bson:"code"`
	Message string `bson:"errmsg"`
}

func (e WriteError) Error() string {
	return fmt.Sprintf("write error at index %d (code %d): %s", e.Index, e.Code, e.Message)
}

// WriteErrors is the collection of per-statement failures of one
// write command.
type WriteErrors []WriteError

func (e WriteErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, writeErr := range e {
		messages = append(messages, writeErr.Error())
	}
	return strings.Join(messages, ", ")
}

// WriteConcernError is a write concern failure reported alongside an
// otherwise successful write.
type WriteConcernError struct {
	Code    int32  `bson:"code"`
	Message string `bson:"errmsg"`
}

func (e *WriteConcernError) Error() string {
	return fmt.Sprintf("write concern error (code %d): %s", e.Code, e.Message)
}
