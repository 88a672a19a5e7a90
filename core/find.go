package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// FindOptions are the options for the find command.
type FindOptions struct {
	// Limit is the maximum number of documents to return. A zero
	// value means no limit.
	Limit int64
	// Skip is the number of documents to skip before returning.
	Skip int64
	// Sort is the sort specification document.
	Sort interface{}
	// Projection selects which fields to return.
	Projection interface{}
	// BatchSize is the number of documents to return per batch. A
	// zero value uses the server's default batch size.
	BatchSize int32
	// Comment is attached to the query for log and profile
	// correlation.
	Comment string
}

// Find executes a query and returns a cursor over the matching
// documents.
func Find(ctx context.Context, c conn.Connection, ns Namespace, filter interface{}, opts *FindOptions) (Cursor, error) {
	if filter == nil {
		filter = bson.D{}
	}

	findCmd := bson.D{
		{Key: "find", Value: ns.CollectionName()},
		{Key: "filter", Value: filter},
	}

	var batchSize int32
	var limit int64
	if opts != nil {
		batchSize = opts.BatchSize
		limit = opts.Limit
		if opts.Limit != 0 {
			findCmd = append(findCmd, bson.E{Key: "limit", Value: opts.Limit})
		}
		if opts.Skip != 0 {
			findCmd = append(findCmd, bson.E{Key: "skip", Value: opts.Skip})
		}
		if opts.Sort != nil {
			findCmd = append(findCmd, bson.E{Key: "sort", Value: opts.Sort})
		}
		if opts.Projection != nil {
			findCmd = append(findCmd, bson.E{Key: "projection", Value: opts.Projection})
		}
		if opts.BatchSize != 0 {
			findCmd = append(findCmd, bson.E{Key: "batchSize", Value: opts.BatchSize})
		}
		if opts.Comment != "" {
			findCmd = append(findCmd, bson.E{Key: "comment", Value: opts.Comment})
		}
	}

	var result cursorReturningResult
	err := runCommand(ctx, c, ns.DatabaseName(), findCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute find")
	}

	return NewCursor(c, result.Cursor, batchSize, limit)
}

// FindOne executes a query with a limit of one and returns the single
// matching document, or ErrNoDocuments. The limit spares the server a
// cursor and the client a second round trip.
func FindOne(ctx context.Context, c conn.Connection, ns Namespace, filter interface{}, opts *FindOptions) (bson.Raw, error) {
	oneOpts := FindOptions{Limit: 1}
	if opts != nil {
		oneOpts = *opts
		oneOpts.Limit = 1
		oneOpts.BatchSize = 0
	}

	cursor, err := Find(ctx, c, ns, filter, &oneOpts)
	if err != nil {
		return nil, err
	}

	docs, err := drainCursor(ctx, cursor)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	return docs[0], nil
}
