package mongo

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/core"
)

// Database is a handle for a database. It holds no resources of its
// own and is immutable after construction.
type Database struct {
	conn conn.Connection
	name string
}

// NewDatabase creates a database handle. "." characters are not legal
// in database names and are stripped from the given name.
func NewDatabase(c conn.Connection, name string) *Database {
	return &Database{
		conn: c,
		name: strings.ReplaceAll(name, ".", ""),
	}
}

// Name returns the name of the database.
func (db *Database) Name() string {
	return db.name
}

// Connection returns the connection the database handle operates on.
func (db *Database) Connection() conn.Connection {
	return db.conn
}

// Collection returns a handle for a collection in the database.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// RunCommand runs an arbitrary command against the database and
// returns the reply document.
func (db *Database) RunCommand(ctx context.Context, cmd interface{}) (bson.Raw, error) {
	return core.RunCommand(ctx, db.conn, db.name, cmd)
}

// ListCollections returns a cursor over the info documents of the
// database's collections.
func (db *Database) ListCollections(ctx context.Context, filter interface{}) (core.Cursor, error) {
	return core.ListCollections(ctx, db.conn, db.name, filter, 0)
}

// CreateUser creates a user on the database.
func (db *Database) CreateUser(ctx context.Context, username, password string, roles []core.Role) error {
	return core.CreateUser(ctx, db.conn, db.name, username, password, roles)
}

// UsersInfo returns the users of the database, or a single user when
// username is not empty.
func (db *Database) UsersInfo(ctx context.Context, username string) ([]core.UserInfo, error) {
	return core.UsersInfo(ctx, db.conn, db.name, username)
}
