package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// DeleteDoc is one statement of a delete command. A Limit of 1
// deletes a single matching document; 0 deletes all matches.
type DeleteDoc struct {
	Q     interface{} `bson:"q"`
	Limit int32       `bson:"limit"`
}

// Delete executes a delete command for the given set of statements.
func Delete(ctx context.Context, c conn.Connection, ns Namespace, deletes []DeleteDoc, opts *WriteOptions) (*DeleteResult, error) {
	if len(deletes) == 0 {
		return nil, ErrNothingToDo
	}

	deleteCmd := bson.D{
		{Key: "delete", Value: ns.CollectionName()},
		{Key: "deletes", Value: deletes},
		{Key: "ordered", Value: opts.ordered()},
	}

	var result DeleteResult
	err := runCommand(ctx, c, ns.DatabaseName(), deleteCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute delete")
	}

	return &result, writeResultError(result.WriteErrors, result.WriteConcernError)
}
