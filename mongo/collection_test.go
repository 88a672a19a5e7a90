package mongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/colemancda/MongoKitten/core"
	"github.com/colemancda/MongoKitten/internal/conntest"
	. "github.com/colemancda/MongoKitten/mongo"
)

func okReply(n int32) bson.Raw {
	return conntest.CreateCommandReply(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: n}})
}

func TestCollection_InsertOne_generates_an_id(t *testing.T) {
	t.Parallel()

	c := &conntest.MockConnection{ResponseQ: []bson.Raw{okReply(1)}}

	coll := NewDatabase(c, "test").Collection("foo")
	result, err := coll.InsertOne(context.Background(), bson.D{{Key: "name", Value: "alice"}})
	require.NoError(t, err)

	generated, ok := result.InsertedID.(primitive.ObjectID)
	require.True(t, ok)
	require.False(t, generated.IsZero())

	sent, err := c.Sent[0].Command.Lookup("documents", "0").Document().Elements()
	require.NoError(t, err)
	// The generated _id leads the document.
	require.Equal(t, "_id", sent[0].Key())
	oid := sent[0].Value().ObjectID()
	require.Equal(t, generated, oid)
	require.Equal(t, "alice", sent[1].Value().StringValue())
}

func TestCollection_InsertOne_keeps_an_existing_id(t *testing.T) {
	t.Parallel()

	c := &conntest.MockConnection{ResponseQ: []bson.Raw{okReply(1)}}

	coll := NewDatabase(c, "test").Collection("foo")
	result, err := coll.InsertOne(context.Background(), bson.D{{Key: "_id", Value: int32(7)}})
	require.NoError(t, err)

	id, ok := result.InsertedID.(bson.RawValue)
	require.True(t, ok)
	require.Equal(t, int32(7), id.Int32())
}

func TestCollection_InsertMany(t *testing.T) {
	t.Parallel()

	c := &conntest.MockConnection{ResponseQ: []bson.Raw{okReply(2)}}

	coll := NewDatabase(c, "test").Collection("foo")
	result, err := coll.InsertMany(context.Background(), []interface{}{
		bson.D{{Key: "name", Value: "a"}},
		bson.D{{Key: "name", Value: "b"}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.InsertedIDs, 2)

	_, err = coll.InsertMany(context.Background(), nil, nil)
	require.ErrorIs(t, err, core.ErrNothingToDo)
}

func TestCollection_UpdateOne_is_single_and_UpdateMany_is_multi(t *testing.T) {
	t.Parallel()

	update := bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: 1}}}}

	c := &conntest.MockConnection{ResponseQ: []bson.Raw{okReply(1), okReply(2)}}
	coll := NewDatabase(c, "test").Collection("foo")

	_, err := coll.UpdateOne(context.Background(), bson.D{{Key: "x", Value: 0}}, update, false)
	require.NoError(t, err)
	_, lookupErr := c.Sent[0].Command.LookupErr("updates", "0", "multi")
	require.Error(t, lookupErr)

	_, err = coll.UpdateMany(context.Background(), bson.D{{Key: "x", Value: 0}}, update, false)
	require.NoError(t, err)
	require.True(t, c.Sent[1].Command.Lookup("updates", "0", "multi").Boolean())
}

func TestCollection_DeleteOne_and_DeleteMany_limits(t *testing.T) {
	t.Parallel()

	c := &conntest.MockConnection{ResponseQ: []bson.Raw{okReply(1), okReply(5)}}
	coll := NewDatabase(c, "test").Collection("foo")

	_, err := coll.DeleteOne(context.Background(), bson.D{{Key: "x", Value: 0}})
	require.NoError(t, err)
	require.Equal(t, int32(1), c.Sent[0].Command.Lookup("deletes", "0", "limit").Int32())

	_, err = coll.DeleteMany(context.Background(), bson.D{{Key: "x", Value: 0}})
	require.NoError(t, err)
	require.Equal(t, int32(0), c.Sent[1].Command.Lookup("deletes", "0", "limit").Int32())
}

func TestCollection_FindOne(t *testing.T) {
	t.Parallel()

	d1 := conntest.CreateCommandReply(bson.D{{Key: "_id", Value: int32(1)}})
	reply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "test.foo"},
			{Key: "firstBatch", Value: bson.A{d1}},
		}},
	})
	c := &conntest.MockConnection{ResponseQ: []bson.Raw{reply}}

	coll := NewDatabase(c, "test").Collection("foo")
	doc, err := coll.FindOne(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), doc.Lookup("_id").Int32())
}

func TestClient_wraps_a_connection(t *testing.T) {
	t.Parallel()

	reply := conntest.CreateCommandReply(bson.D{{Key: "ok", Value: 1}, {Key: "ismaster", Value: true}})
	c := &conntest.MockConnection{ResponseQ: []bson.Raw{reply}}

	client := NewClient(c)
	result, err := client.IsMaster(context.Background())
	require.NoError(t, err)
	require.True(t, result.IsMaster)

	db := client.Database("test")
	require.Equal(t, "test", db.Name())

	require.NoError(t, client.Disconnect())
	require.False(t, c.Alive())
}
