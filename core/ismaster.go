package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// IsMaster runs the ismaster command and returns the server's
// self-description.
func IsMaster(ctx context.Context, c conn.Connection) (*IsMasterResult, error) {
	var result IsMasterResult
	err := runCommand(ctx, c, "admin", bson.D{{Key: "ismaster", Value: 1}}, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute ismaster")
	}

	return &result, nil
}
