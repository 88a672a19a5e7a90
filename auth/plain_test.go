package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	. "github.com/colemancda/MongoKitten/auth"
	"github.com/colemancda/MongoKitten/internal/conntest"
)

func TestPlainAuthenticator_Succeeds(t *testing.T) {
	t.Parallel()

	authenticator := PlainAuthenticator{
		DB:       "$external",
		Username: "user",
		Password: "pencil",
	}

	reply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: []byte{}},
		{Key: "done", Value: true},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{reply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, c.Sent, 1)

	sent := c.Sent[0].Command
	require.Equal(t, "PLAIN", sent.Lookup("mechanism").StringValue())
	_, payload := sent.Lookup("payload").Binary()
	require.Equal(t, []byte("\x00user\x00pencil"), payload)
}

func TestPlainAuthenticator_rejects_a_challenge(t *testing.T) {
	t.Parallel()

	authenticator := PlainAuthenticator{
		DB:       "$external",
		Username: "user",
		Password: "pencil",
	}

	reply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: []byte("challenge")},
		{Key: "done", Value: false},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{reply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.ErrorIs(t, err, ErrUnexpectedServerPayload)
}
