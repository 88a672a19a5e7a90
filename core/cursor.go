package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// Cursor is a lazy stream of documents backed by a server-side cursor.
// A cursor holding a non-zero id owns that id: it must be iterated to
// exhaustion or closed, or the server leaks the cursor.
type Cursor interface {
	// ID returns the server-side cursor id. Zero means the server
	// holds no state for this cursor.
	ID() int64

	// Next gets the next result from the cursor, decoding it into
	// result. It returns true if there were no errors and a next
	// result was available.
	Next(ctx context.Context, result interface{}) bool

	// Err returns the error status of the cursor.
	Err() error

	// Close surrenders the server-side cursor, if one remains, and
	// marks the cursor exhausted. It is idempotent.
	Close(ctx context.Context) error
}

// NewCursor creates a cursor from the cursor sub-document of a
// command reply.
func NewCursor(c conn.Connection, result CursorResult, batchSize int32, limit int64) (Cursor, error) {
	namespace, err := ParseNamespace(result.NS)
	if err != nil {
		return nil, internal.WrapErrorf(err, "invalid cursor namespace %q", result.NS)
	}

	return &cursorImpl{
		conn:         c,
		namespace:    namespace,
		batchSize:    batchSize,
		limit:        limit,
		currentBatch: result.Batch(),
		cursorID:     result.ID,
	}, nil
}

type cursorImpl struct {
	conn      conn.Connection
	namespace Namespace
	batchSize int32
	limit     int64

	numReturned  int64
	current      int
	currentBatch []bson.Raw
	cursorID     int64
	err          error
	closed       bool
	surrendered  bool
}

func (c *cursorImpl) ID() int64 {
	return c.cursorID
}

func (c *cursorImpl) Next(ctx context.Context, result interface{}) bool {
	if c.closed {
		if c.surrendered {
			c.err = ErrCursorClosed
		}
		return false
	}

	if c.getNextFromCurrentBatch(ctx, result) {
		return true
	}
	if c.err != nil {
		return false
	}

	c.getMore(ctx)
	if c.err != nil {
		return false
	}

	if c.getNextFromCurrentBatch(ctx, result) {
		return true
	}

	// Both the batch and the server are out of documents.
	c.closed = true
	return false
}

func (c *cursorImpl) Err() error {
	return c.err
}

func (c *cursorImpl) Close(ctx context.Context) error {
	if c.closed {
		return c.err
	}
	c.surrendered = c.current < len(c.currentBatch) || c.cursorID != 0
	c.finish(ctx)
	return c.err
}

// finish marks the cursor exhausted, surrendering the server-side
// cursor if one remains.
func (c *cursorImpl) finish(ctx context.Context) {
	c.closed = true
	c.currentBatch = nil
	c.current = 0

	if c.cursorID != 0 {
		KillCursors(ctx, c.conn, c.namespace, []int64{c.cursorID})
		c.cursorID = 0
	}
}

func (c *cursorImpl) getNextFromCurrentBatch(ctx context.Context, result interface{}) bool {
	if c.current >= len(c.currentBatch) {
		return false
	}

	doc := c.currentBatch[c.current]
	if err := decodeDocument(doc, result); err != nil {
		c.err = err
		return false
	}
	c.current++
	c.numReturned++

	// A satisfied limit ends the cursor after the current document.
	if c.limit > 0 && c.numReturned >= c.limit {
		c.finish(ctx)
	}

	return true
}

func (c *cursorImpl) getMore(ctx context.Context) {
	c.currentBatch = nil
	c.current = 0

	if c.cursorID == 0 {
		return
	}

	batchSize := c.batchSize
	if c.limit > 0 {
		remaining := c.limit - c.numReturned
		if remaining <= 0 {
			c.finish(ctx)
			return
		}
		if batchSize == 0 || int64(batchSize) > remaining {
			batchSize = int32(remaining)
		}
	}

	getMoreCmd := bson.D{
		{Key: "getMore", Value: c.cursorID},
		{Key: "collection", Value: c.namespace.CollectionName()},
	}
	if batchSize != 0 {
		getMoreCmd = append(getMoreCmd, bson.E{Key: "batchSize", Value: batchSize})
	}

	var result cursorReturningResult
	err := runCommand(ctx, c.conn, c.namespace.DatabaseName(), getMoreCmd, &result)
	if err != nil {
		c.err = err
		return
	}

	c.cursorID = result.Cursor.ID
	c.currentBatch = result.Cursor.Batch()
}

func decodeDocument(doc bson.Raw, result interface{}) error {
	if raw, ok := result.(*bson.Raw); ok {
		*raw = doc
		return nil
	}
	return bson.Unmarshal(doc, result)
}

// drainCursor collects the remaining documents of a cursor in order.
func drainCursor(ctx context.Context, cursor Cursor) ([]bson.Raw, error) {
	var docs []bson.Raw
	var doc bson.Raw
	for cursor.Next(ctx, &doc) {
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		cursor.Close(ctx)
		return nil, err
	}
	return docs, nil
}
