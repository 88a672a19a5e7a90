package auth

import (
	"context"
	"crypto/sha256"

	"github.com/xdg-go/stringprep"

	"github.com/colemancda/MongoKitten/conn"
)

const scramSHA256 = "SCRAM-SHA-256"

// ScramSHA256Authenticator uses the SCRAM-SHA-256 algorithm over SASL
// to authenticate a connection. Unlike SCRAM-SHA-1, the raw password
// is used after SASLprep normalization.
type ScramSHA256Authenticator struct {
	DB       string
	Username string
	Password string

	NonceGenerator NonceGenerator
}

// Name returns SCRAM-SHA-256.
func (a *ScramSHA256Authenticator) Name() string {
	return scramSHA256
}

// Auth authenticates the connection.
func (a *ScramSHA256Authenticator) Auth(ctx context.Context, c conn.Connection) error {
	password, err := stringprep.SASLprep.Prepare(a.Password)
	if err != nil {
		return newError(err, scramSHA256)
	}

	return conductSaslConversation(ctx, c, a.DB, &scramSaslClient{
		mechanism:      scramSHA256,
		hashNew:        sha256.New,
		username:       a.Username,
		password:       password,
		nonceGenerator: a.NonceGenerator,
	})
}
