package auth_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	. "github.com/colemancda/MongoKitten/auth"
	"github.com/colemancda/MongoKitten/internal/conntest"
)

func fixedNonce(nonce string) NonceGenerator {
	return func() ([]byte, error) {
		return []byte(nonce), nil
	}
}

func mustBase64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func mustMarshal(t *testing.T, doc interface{}) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(doc)
	require.NoError(t, err)
	return bson.Raw(b)
}

func TestScramSHA1Authenticator_Fails(t *testing.T) {
	t.Parallel()

	authenticator := ScramSHA1Authenticator{
		DB:       "source",
		Username: "user",
		Password: "pencil",
	}

	saslStartReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: []byte{}},
		{Key: "code", Value: 143},
		{Key: "done", Value: true},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{saslStartReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.Error(t, err)

	errPrefix := "unable to authenticate using mechanism \"SCRAM-SHA-1\""
	require.True(t, strings.HasPrefix(err.Error(), errPrefix), "got %q", err.Error())
}

func TestScramSHA1Authenticator_Invalid_server_nonce(t *testing.T) {
	t.Parallel()

	authenticator := ScramSHA1Authenticator{
		DB:             "source",
		Username:       "user",
		Password:       "pencil",
		NonceGenerator: fixedNonce("fyko+d2lbbFgONRv9qkxdawL"),
	}

	// The server nonce begins with "fyko-..." instead of extending
	// the client's "fyko+...".
	payload := mustBase64(t, "cj1meWtvLWQybGJiRmdPTlJ2OXFreGRhd0xIbytWZ2s3cXZVT0tVd3VXTElXZzRsLzlTcmFHTUhFRSxzPXJROVpZM01udEJldVAzRTFURFZDNHc9PSxpPTEwMDAw")
	saslStartReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: payload},
		{Key: "done", Value: false},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{saslStartReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidServerNonce)
}

func TestScramSHA1Authenticator_Invalid_server_signature(t *testing.T) {
	t.Parallel()

	authenticator := ScramSHA1Authenticator{
		DB:             "source",
		Username:       "user",
		Password:       "pencil",
		NonceGenerator: fixedNonce("fyko+d2lbbFgONRv9qkxdawL"),
	}

	payload := mustBase64(t, "cj1meWtvK2QybGJiRmdPTlJ2OXFreGRhd0xIbytWZ2s3cXZVT0tVd3VXTElXZzRsLzlTcmFHTUhFRSxzPXJROVpZM01udEJldVAzRTFURFZDNHc9PSxpPTEwMDAw")
	saslStartReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: payload},
		{Key: "done", Value: false},
	})
	// The last character of the valid server signature is flipped.
	payload = mustBase64(t, "dj1VTVdlSTI1SkQxeU5ZWlJNcFo0Vkh2aFo5ZTBh")
	saslContinueReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: payload},
		{Key: "done", Value: false},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{saslStartReply, saslContinueReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidServerSignature)
}

func TestScramSHA1Authenticator_Succeeds(t *testing.T) {
	t.Parallel()

	authenticator := ScramSHA1Authenticator{
		DB:             "source",
		Username:       "user",
		Password:       "pencil",
		NonceGenerator: fixedNonce("fyko+d2lbbFgONRv9qkxdawL"),
	}

	payload := mustBase64(t, "cj1meWtvK2QybGJiRmdPTlJ2OXFreGRhd0xIbytWZ2s3cXZVT0tVd3VXTElXZzRsLzlTcmFHTUhFRSxzPXJROVpZM01udEJldVAzRTFURFZDNHc9PSxpPTEwMDAw")
	saslStartReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: payload},
		{Key: "done", Value: false},
	})
	payload = mustBase64(t, "dj1VTVdlSTI1SkQxeU5ZWlJNcFo0Vkh2aFo5ZTA9")
	saslContinueReply := conntest.CreateCommandReply(bson.D{
		{Key: "ok", Value: 1},
		{Key: "conversationId", Value: 1},
		{Key: "payload", Value: payload},
		{Key: "done", Value: true},
	})

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{saslStartReply, saslContinueReply},
	}

	err := authenticator.Auth(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, c.Sent, 2)
	require.Equal(t, "source", c.Sent[0].DB)

	expectedStart := mustMarshal(t, bson.D{
		{Key: "saslStart", Value: 1},
		{Key: "mechanism", Value: "SCRAM-SHA-1"},
		{Key: "payload", Value: []byte("n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL")},
	})
	require.Equal(t, expectedStart, c.Sent[0].Command)

	continuePayload := mustBase64(t, "Yz1iaXdzLHI9ZnlrbytkMmxiYkZnT05Sdjlxa3hkYXdMSG8rVmdrN3F2VU9LVXd1V0xJV2c0bC85U3JhR01IRUUscD1NQzJUOEJ2Ym1XUmNrRHc4b1dsNUlWZ2h3Q1k9")
	expectedContinue := mustMarshal(t, bson.D{
		{Key: "saslContinue", Value: 1},
		{Key: "conversationId", Value: int32(1)},
		{Key: "payload", Value: continuePayload},
	})
	require.Equal(t, expectedContinue, c.Sent[1].Command)
}

func TestScramSHA1Authenticator_username_escaping(t *testing.T) {
	t.Parallel()

	authenticator := ScramSHA1Authenticator{
		DB:             "source",
		Username:       "user=,name",
		Password:       "pencil",
		NonceGenerator: fixedNonce("fyko+d2lbbFgONRv9qkxdawL"),
	}

	c := &conntest.MockConnection{
		ResponseQ: []bson.Raw{conntest.CreateCommandReply(bson.D{
			{Key: "ok", Value: 0},
			{Key: "errmsg", Value: "auth failed"},
			{Key: "code", Value: 18},
		})},
	}

	err := authenticator.Auth(context.Background(), c)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrIncorrectCredentials)

	payload := c.Sent[0].Command.Lookup("payload")
	_, data := payload.Binary()
	require.Equal(t, "n,,n=user=3D=2Cname,r=fyko+d2lbbFgONRv9qkxdawL", string(data))
}
