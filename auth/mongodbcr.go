package auth

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
)

const mongoDBCR = "MONGODB-CR"

// MongoDBCRAuthenticator uses the MONGODB-CR algorithm to authenticate
// a connection. The mechanism was retired in favor of SCRAM-SHA-1 but
// remains in use against old servers.
type MongoDBCRAuthenticator struct {
	DB       string
	Username string
	Password string
}

// Name returns MONGODB-CR.
func (a *MongoDBCRAuthenticator) Name() string {
	return mongoDBCR
}

// Auth authenticates the connection.
func (a *MongoDBCRAuthenticator) Auth(ctx context.Context, c conn.Connection) error {
	db := a.DB
	if db == "" {
		db = defaultAuthDB
	}

	reply, err := c.RunCommand(ctx, db, bson.D{{Key: "getnonce", Value: 1}})
	if err != nil {
		return newError(err, mongoDBCR)
	}

	var getNonceResult struct {
		Nonce string `bson:"nonce"`
	}
	err = bson.Unmarshal(reply, &getNonceResult)
	if err != nil {
		return newError(err, mongoDBCR)
	}

	authCmd := bson.D{
		{Key: "authenticate", Value: 1},
		{Key: "user", Value: a.Username},
		{Key: "nonce", Value: getNonceResult.Nonce},
		{Key: "key", Value: a.createKey(getNonceResult.Nonce)},
	}
	_, err = c.RunCommand(ctx, db, authCmd)
	if err != nil {
		return newError(translateCommandError(err), mongoDBCR)
	}

	return nil
}

func (a *MongoDBCRAuthenticator) createKey(nonce string) string {
	h := md5.New()

	io.WriteString(h, nonce)
	io.WriteString(h, a.Username)
	io.WriteString(h, mongoPasswordDigest(a.Username, a.Password))
	return fmt.Sprintf("%x", h.Sum(nil))
}
