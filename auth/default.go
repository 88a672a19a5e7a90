package auth

import (
	"context"

	"github.com/colemancda/MongoKitten/conn"
)

// scramSHA1WireVersion is the first wire version whose servers store
// SCRAM-SHA-1 credentials.
const scramSHA1WireVersion = 3

// DefaultAuthenticator uses SCRAM-SHA-1 or MONGODB-CR depending
// on the server version.
type DefaultAuthenticator struct {
	DB       string
	Username string
	Password string
}

// Name returns DEFAULT.
func (a *DefaultAuthenticator) Name() string {
	return "DEFAULT"
}

// Auth authenticates the connection.
func (a *DefaultAuthenticator) Auth(ctx context.Context, c conn.Connection) error {
	var actual Authenticator

	desc := c.Desc()
	if desc != nil && desc.WireVersion.Max >= scramSHA1WireVersion {
		actual = &ScramSHA1Authenticator{DB: a.DB, Username: a.Username, Password: a.Password}
	} else {
		actual = &MongoDBCRAuthenticator{DB: a.DB, Username: a.Username, Password: a.Password}
	}

	return actual.Auth(ctx, c)
}
