package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// AggregateOptions are the options for the aggregate command.
type AggregateOptions struct {
	// AllowDiskUse permits the server to spill pipeline stages to
	// stable storage.
	AllowDiskUse bool
	// BatchSize is the batch size for fetching results. A zero value
	// uses the server's default batch size.
	BatchSize int32
	// Comment is attached to the command for log and profile
	// correlation.
	Comment string
}

// Aggregate performs an aggregation and returns a cursor over the
// resulting documents.
//
// The pipeline must encode as a BSON array of pipeline stages.
func Aggregate(ctx context.Context, c conn.Connection, ns Namespace, pipeline interface{}, opts *AggregateOptions) (Cursor, error) {
	aggregateCmd := bson.D{
		{Key: "aggregate", Value: ns.CollectionName()},
		{Key: "pipeline", Value: pipeline},
	}

	cursorArg := bson.D{}
	var batchSize int32
	if opts != nil {
		batchSize = opts.BatchSize
		if opts.BatchSize != 0 {
			cursorArg = append(cursorArg, bson.E{Key: "batchSize", Value: opts.BatchSize})
		}
		if opts.AllowDiskUse {
			aggregateCmd = append(aggregateCmd, bson.E{Key: "allowDiskUse", Value: true})
		}
	}
	aggregateCmd = append(aggregateCmd, bson.E{Key: "cursor", Value: cursorArg})
	if opts != nil && opts.Comment != "" {
		aggregateCmd = append(aggregateCmd, bson.E{Key: "comment", Value: opts.Comment})
	}

	var result cursorReturningResult
	err := runCommand(ctx, c, ns.DatabaseName(), aggregateCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute aggregate")
	}

	return NewCursor(c, result.Cursor, batchSize, 0)
}
