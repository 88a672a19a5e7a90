package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// ListCollections returns a cursor over the info documents of a
// database's collections.
func ListCollections(ctx context.Context, c conn.Connection, db string, filter interface{}, batchSize int32) (Cursor, error) {
	listCollectionsCmd := bson.D{{Key: "listCollections", Value: 1}}
	if filter != nil {
		listCollectionsCmd = append(listCollectionsCmd, bson.E{Key: "filter", Value: filter})
	}

	cursorArg := bson.D{}
	if batchSize != 0 {
		cursorArg = append(cursorArg, bson.E{Key: "batchSize", Value: batchSize})
	}
	listCollectionsCmd = append(listCollectionsCmd, bson.E{Key: "cursor", Value: cursorArg})

	var result cursorReturningResult
	err := runCommand(ctx, c, db, listCollectionsCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute listCollections")
	}

	return NewCursor(c, result.Cursor, batchSize, 0)
}
