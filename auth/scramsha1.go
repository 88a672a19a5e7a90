package auth

import (
	"context"
	"crypto/sha1"

	"github.com/colemancda/MongoKitten/conn"
)

const scramSHA1 = "SCRAM-SHA-1"

// ScramSHA1Authenticator uses the SCRAM-SHA-1 algorithm over SASL to
// authenticate a connection. The password fed to the SCRAM salting is
// md5("<user>:mongo:<password>"), not the raw password; the server
// stores credentials derived from that digest.
type ScramSHA1Authenticator struct {
	DB       string
	Username string
	Password string

	NonceGenerator NonceGenerator
}

// Name returns SCRAM-SHA-1.
func (a *ScramSHA1Authenticator) Name() string {
	return scramSHA1
}

// Auth authenticates the connection.
func (a *ScramSHA1Authenticator) Auth(ctx context.Context, c conn.Connection) error {
	return conductSaslConversation(ctx, c, a.DB, &scramSaslClient{
		mechanism:      scramSHA1,
		hashNew:        sha1.New,
		username:       a.Username,
		password:       mongoPasswordDigest(a.Username, a.Password),
		nonceGenerator: a.NonceGenerator,
	})
}
