package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// Count returns the number of documents matching the query. The
// server replies with an int32 or int64 depending on magnitude; the
// result is widened to int64 either way.
func Count(ctx context.Context, c conn.Connection, ns Namespace, query interface{}) (int64, error) {
	countCmd := bson.D{{Key: "count", Value: ns.CollectionName()}}
	if query != nil {
		countCmd = append(countCmd, bson.E{Key: "query", Value: query})
	}

	var result struct {
		N int64 `bson:"n"`
	}
	err := runCommand(ctx, c, ns.DatabaseName(), countCmd, &result)
	if err != nil {
		return 0, internal.WrapError(err, "failed to execute count")
	}

	return result.N, nil
}
