package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// WriteOptions are the options shared by the write commands.
type WriteOptions struct {
	// Unordered lets the server continue past per-statement failures.
	Unordered bool
}

func (o *WriteOptions) ordered() bool {
	return o == nil || !o.Unordered
}

// Insert executes an insert command for the given set of documents.
//
// A reply carrying writeErrors or a writeConcernError fails the
// operation even when the command itself succeeded; the partial
// result is returned alongside the error.
func Insert(ctx context.Context, c conn.Connection, ns Namespace, documents []interface{}, opts *WriteOptions) (*InsertResult, error) {
	if len(documents) == 0 {
		return nil, ErrNothingToDo
	}

	insertCmd := bson.D{
		{Key: "insert", Value: ns.CollectionName()},
		{Key: "documents", Value: documents},
		{Key: "ordered", Value: opts.ordered()},
	}

	var result InsertResult
	err := runCommand(ctx, c, ns.DatabaseName(), insertCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute insert")
	}

	return &result, writeResultError(result.WriteErrors, result.WriteConcernError)
}
