package core

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InsertResult is the result of executing an insert command.
type InsertResult struct {
	N                 int64              `bson:"n"`
	WriteErrors       WriteErrors        `bson:"writeErrors"`
	WriteConcernError *WriteConcernError `bson:"writeConcernError"`
}

// UpsertedID reports the id generated for one upserted statement.
type UpsertedID struct {
	Index int32       `bson:"index"`
	ID    interface{} `bson:"_id"`
}

// UpdateResult is the result of executing an update command.
type UpdateResult struct {
	N                 int64              `bson:"n"`
	NModified         int64              `bson:"nModified"`
	Upserted          []UpsertedID       `bson:"upserted"`
	WriteErrors       WriteErrors        `bson:"writeErrors"`
	WriteConcernError *WriteConcernError `bson:"writeConcernError"`
}

// DeleteResult is the result of executing a delete command.
type DeleteResult struct {
	N                 int64              `bson:"n"`
	WriteErrors       WriteErrors        `bson:"writeErrors"`
	WriteConcernError *WriteConcernError `bson:"writeConcernError"`
}

// IsMasterResult is the result of executing the ismaster command.
type IsMasterResult struct {
	Arbiters            []string           `bson:"arbiters"`
	ArbiterOnly         bool               `bson:"arbiterOnly"`
	ElectionID          primitive.ObjectID `bson:"electionId"`
	Hidden              bool               `bson:"hidden"`
	Hosts               []string           `bson:"hosts"`
	IsMaster            bool               `bson:"ismaster"`
	IsReplicaSet        bool               `bson:"isreplicaset"`
	MaxBSONObjectSize   uint32             `bson:"maxBsonObjectSize"`
	MaxMessageSizeBytes uint32             `bson:"maxMessageSizeBytes"`
	MaxWriteBatchSize   uint32             `bson:"maxWriteBatchSize"`
	Me                  string             `bson:"me"`
	MaxWireVersion      int32              `bson:"maxWireVersion"`
	MinWireVersion      int32              `bson:"minWireVersion"`
	Msg                 string             `bson:"msg"`
	Passives            []string           `bson:"passives"`
	ReadOnly            bool               `bson:"readOnly"`
	Secondary           bool               `bson:"secondary"`
	SetName             string             `bson:"setName"`
	SetVersion          uint32             `bson:"setVersion"`
}

// cursorReturningResult is the shape shared by every cursor-returning
// command reply.
type cursorReturningResult struct {
	Cursor CursorResult `bson:"cursor"`
}

// CursorResult is the cursor sub-document of a find, aggregate,
// listCollections, or getMore reply.
type CursorResult struct {
	FirstBatch []bson.Raw `bson:"firstBatch"`
	NextBatch  []bson.Raw `bson:"nextBatch"`
	NS         string     `bson:"ns"`
	ID         int64      `bson:"id"`
}

// Batch returns whichever batch the reply carried.
func (r CursorResult) Batch() []bson.Raw {
	if r.FirstBatch != nil {
		return r.FirstBatch
	}
	return r.NextBatch
}
