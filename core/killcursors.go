package core

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
)

// KillCursors surrenders server-side cursors. It is fire-and-forget:
// a failure leaves nothing for the caller to act on, so it is logged
// and swallowed.
func KillCursors(ctx context.Context, c conn.Connection, ns Namespace, cursorIDs []int64) {
	killCursorsCmd := bson.D{
		{Key: "killCursors", Value: ns.CollectionName()},
		{Key: "cursors", Value: cursorIDs},
	}

	_, err := c.RunCommand(ctx, ns.DatabaseName(), killCursorsCmd)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"namespace": ns.FullName(),
			"cursors":   cursorIDs,
		}).Warn("failed to kill cursors")
	}
}
