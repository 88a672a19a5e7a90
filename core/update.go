package core

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// UpdateDoc is one statement of an update command.
type UpdateDoc struct {
	Q      interface{} `bson:"q"`
	U      interface{} `bson:"u"`
	Upsert bool        `bson:"upsert,omitempty"`
	Multi  bool        `bson:"multi,omitempty"`
}

// Update executes an update command for the given set of statements.
//
// A statement whose update document sets nothing is rejected with
// ErrNothingToDo before any frame is written.
func Update(ctx context.Context, c conn.Connection, ns Namespace, updates []UpdateDoc, opts *WriteOptions) (*UpdateResult, error) {
	if len(updates) == 0 {
		return nil, ErrNothingToDo
	}
	for i, update := range updates {
		empty, err := emptyDocument(update.U)
		if err != nil {
			return nil, internal.WrapError(err, "unable to marshal update document")
		}
		if empty {
			return nil, fmt.Errorf("%w: update %d sets nothing", ErrNothingToDo, i)
		}
	}

	updateCmd := bson.D{
		{Key: "update", Value: ns.CollectionName()},
		{Key: "updates", Value: updates},
		{Key: "ordered", Value: opts.ordered()},
	}

	var result UpdateResult
	err := runCommand(ctx, c, ns.DatabaseName(), updateCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute update")
	}

	return &result, writeResultError(result.WriteErrors, result.WriteConcernError)
}
