package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/core"
	"github.com/colemancda/MongoKitten/internal"
)

// Collection is a handle for a collection. It holds no resources of
// its own and is immutable after construction.
type Collection struct {
	db   *Database
	name string
}

// Name returns the name of the collection.
func (coll *Collection) Name() string {
	return coll.name
}

// FullName returns the "<db>.<collection>" namespace string.
func (coll *Collection) FullName() string {
	return coll.namespace().FullName()
}

// Database returns the database the collection belongs to.
func (coll *Collection) Database() *Database {
	return coll.db
}

func (coll *Collection) namespace() core.Namespace {
	ns, err := core.NewNamespace(coll.db.name, coll.name)
	if err != nil {
		// The database handle strips "." from its name; an empty
		// name or one containing a space still makes the namespace
		// invalid.
		return core.Namespace{}
	}
	return ns
}

// InsertOneResult is the result of an InsertOne operation.
type InsertOneResult struct {
	// InsertedID is the _id of the inserted document, generated if
	// the document carried none.
	InsertedID interface{}
}

// InsertOne inserts a single document into the collection. A document
// without an _id gets one from the connection's ObjectID generator.
func (coll *Collection) InsertOne(ctx context.Context, document interface{}) (*InsertOneResult, error) {
	doc, insertedID, err := coll.ensureID(document)
	if err != nil {
		return nil, err
	}

	_, err = core.Insert(ctx, coll.db.conn, coll.namespace(), []interface{}{doc}, nil)
	if err != nil {
		return nil, err
	}

	return &InsertOneResult{InsertedID: insertedID}, nil
}

// InsertManyResult is the result of an InsertMany operation.
type InsertManyResult struct {
	// InsertedIDs are the _id values of the inserted documents, in
	// input order.
	InsertedIDs []interface{}
}

// InsertMany inserts a set of documents into the collection.
func (coll *Collection) InsertMany(ctx context.Context, documents []interface{}, opts *core.WriteOptions) (*InsertManyResult, error) {
	if len(documents) == 0 {
		return nil, core.ErrNothingToDo
	}

	docs := make([]interface{}, 0, len(documents))
	ids := make([]interface{}, 0, len(documents))
	for _, document := range documents {
		doc, insertedID, err := coll.ensureID(document)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		ids = append(ids, insertedID)
	}

	_, err := core.Insert(ctx, coll.db.conn, coll.namespace(), docs, opts)
	if err != nil {
		return nil, err
	}

	return &InsertManyResult{InsertedIDs: ids}, nil
}

// UpdateOne updates a single document matching the filter.
func (coll *Collection) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (*core.UpdateResult, error) {
	updates := []core.UpdateDoc{{Q: filter, U: update, Upsert: upsert}}
	return core.Update(ctx, coll.db.conn, coll.namespace(), updates, nil)
}

// UpdateMany updates every document matching the filter.
func (coll *Collection) UpdateMany(ctx context.Context, filter, update interface{}, upsert bool) (*core.UpdateResult, error) {
	updates := []core.UpdateDoc{{Q: filter, U: update, Upsert: upsert, Multi: true}}
	return core.Update(ctx, coll.db.conn, coll.namespace(), updates, nil)
}

// DeleteOne deletes a single document matching the filter.
func (coll *Collection) DeleteOne(ctx context.Context, filter interface{}) (*core.DeleteResult, error) {
	deletes := []core.DeleteDoc{{Q: filter, Limit: 1}}
	return core.Delete(ctx, coll.db.conn, coll.namespace(), deletes, nil)
}

// DeleteMany deletes every document matching the filter.
func (coll *Collection) DeleteMany(ctx context.Context, filter interface{}) (*core.DeleteResult, error) {
	deletes := []core.DeleteDoc{{Q: filter, Limit: 0}}
	return core.Delete(ctx, coll.db.conn, coll.namespace(), deletes, nil)
}

// Find executes a query and returns a cursor over the matching
// documents.
func (coll *Collection) Find(ctx context.Context, filter interface{}, opts *core.FindOptions) (core.Cursor, error) {
	return core.Find(ctx, coll.db.conn, coll.namespace(), filter, opts)
}

// FindOne returns the single document matching the filter, or
// core.ErrNoDocuments.
func (coll *Collection) FindOne(ctx context.Context, filter interface{}, opts *core.FindOptions) (bson.Raw, error) {
	return core.FindOne(ctx, coll.db.conn, coll.namespace(), filter, opts)
}

// Count returns the number of documents matching the query.
func (coll *Collection) Count(ctx context.Context, query interface{}) (int64, error) {
	return core.Count(ctx, coll.db.conn, coll.namespace(), query)
}

// Distinct returns the distinct values of a field among the documents
// matching the query.
func (coll *Collection) Distinct(ctx context.Context, field string, query interface{}) ([]interface{}, error) {
	return core.Distinct(ctx, coll.db.conn, coll.namespace(), field, query)
}

// Aggregate runs an aggregation pipeline and returns a cursor over
// the resulting documents.
func (coll *Collection) Aggregate(ctx context.Context, pipeline interface{}, opts *core.AggregateOptions) (core.Cursor, error) {
	return core.Aggregate(ctx, coll.db.conn, coll.namespace(), pipeline, opts)
}

// ensureID marshals a document and guarantees it carries an _id,
// generating one when absent.
func (coll *Collection) ensureID(document interface{}) (bson.Raw, interface{}, error) {
	b, err := bson.Marshal(document)
	if err != nil {
		return nil, nil, internal.WrapError(err, "unable to marshal document")
	}
	doc := bson.Raw(b)

	if id, lookupErr := doc.LookupErr("_id"); lookupErr == nil {
		return doc, id, nil
	}

	generated := coll.db.conn.NextObjectID()

	// Splice the generated _id in as the first element.
	withID := make([]byte, 0, len(doc)+17)
	withID = append(withID, 0, 0, 0, 0)
	withID = append(withID, 0x07)
	withID = append(withID, "_id"...)
	withID = append(withID, 0)
	withID = append(withID, generated[:]...)
	withID = append(withID, doc[4:]...)

	length := len(withID)
	withID[0] = byte(length)
	withID[1] = byte(length >> 8)
	withID[2] = byte(length >> 16)
	withID[3] = byte(length >> 24)

	return bson.Raw(withID), generated, nil
}
