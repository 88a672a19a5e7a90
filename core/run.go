package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// RunCommand runs an arbitrary command against a database and returns
// the reply document.
func RunCommand(ctx context.Context, c conn.Connection, db string, cmd interface{}) (bson.Raw, error) {
	return c.RunCommand(ctx, db, cmd)
}

func runCommand(ctx context.Context, c conn.Connection, db string, cmd interface{}, result interface{}) error {
	reply, err := c.RunCommand(ctx, db, cmd)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	err = bson.Unmarshal(reply, result)
	if err != nil {
		return internal.WrapError(err, "unable to decode command result")
	}
	return nil
}

// writeResultError folds the write-error fields of a reply into an
// error, if any are present.
func writeResultError(writeErrors WriteErrors, writeConcernError *WriteConcernError) error {
	if len(writeErrors) > 0 {
		return writeErrors
	}
	if writeConcernError != nil {
		return writeConcernError
	}
	return nil
}

// emptyDocument reports whether a value marshals to a document with no
// elements.
func emptyDocument(doc interface{}) (bool, error) {
	if doc == nil {
		return true, nil
	}
	b, err := bson.Marshal(doc)
	if err != nil {
		return false, err
	}
	return len(b) == 5, nil
}
