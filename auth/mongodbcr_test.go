package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	. "github.com/colemancda/MongoKitten/auth"
	"github.com/colemancda/MongoKitten/internal/conntest"
)

func TestMongoDBCRAuthenticator_Fails(t *testing.T) {
	t.Parallel()

	authenticator := MongoDBCRAuthenticator{
		DB:       "source",
		Username: "user",
		Password: "pencil",
	}

	getNonceReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "nonce", Value: "2375531c32080ae8"},
	})
	authenticateReply := conntest.CreateCommandReply(bson.D{{Key: "ok", Value: 0}})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{getNonceReply, authenticateReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.Error(t, err)

	errPrefix := "unable to authenticate using mechanism \"MONGODB-CR\""
	require.True(t, strings.HasPrefix(err.Error(), errPrefix), "got %q", err.Error())
}

func TestMongoDBCRAuthenticator_Succeeds(t *testing.T) {
	t.Parallel()

	authenticator := MongoDBCRAuthenticator{
		DB:       "source",
		Username: "user",
		Password: "pencil",
	}

	getNonceReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "nonce", Value: "2375531c32080ae8"},
	})
	authenticateReply := conntest.CreateCommandReply(bson.D{{Key: "ok", Value: 1}})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{getNonceReply, authenticateReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, c.Sent, 2)
	require.Equal(t, "source", c.Sent[0].DB)
	require.Equal(t, mustMarshal(t, bson.D{{Key: "getnonce", Value: 1}}), c.Sent[0].Command)

	expectedAuthenticate := mustMarshal(t, bson.D{
		{Key: "authenticate", Value: 1},
		{Key: "user", Value: "user"},
		{Key: "nonce", Value: "2375531c32080ae8"},
		{Key: "key", Value: "21742f26431831d5cfca035a08c5bdf6"},
	})
	require.Equal(t, expectedAuthenticate, c.Sent[1].Command)
}
