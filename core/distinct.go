package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// Distinct returns the distinct values of a field among the documents
// matching the query.
func Distinct(ctx context.Context, c conn.Connection, ns Namespace, field string, query interface{}) ([]interface{}, error) {
	distinctCmd := bson.D{
		{Key: "distinct", Value: ns.CollectionName()},
		{Key: "key", Value: field},
	}
	if query != nil {
		distinctCmd = append(distinctCmd, bson.E{Key: "query", Value: query})
	}

	var result struct {
		Values []interface{} `bson:"values"`
	}
	err := runCommand(ctx, c, ns.DatabaseName(), distinctCmd, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute distinct")
	}

	return result.Values, nil
}
