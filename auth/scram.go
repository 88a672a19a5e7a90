package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const clientNonceLength = 24

// nonceAlphabet deliberately avoids "," and "=", the delimiters of the
// SCRAM message grammar. Its length is a power of two so masked random
// bytes index it uniformly.
const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// NonceGenerator produces the client nonce for one conversation. The
// default uses crypto/rand; tests inject fixed nonces.
type NonceGenerator func() ([]byte, error)

func generateClientNonce() ([]byte, error) {
	nonce := make([]byte, clientNonceLength)
	_, err := rand.Read(nonce)
	if err != nil {
		return nil, err
	}

	for i, b := range nonce {
		nonce[i] = nonceAlphabet[b&63]
	}
	return nonce, nil
}

// scramSaslClient drives one SCRAM conversation: client-first,
// client-final with proof, then server-signature verification.
type scramSaslClient struct {
	mechanism      string
	hashNew        func() hash.Hash
	username       string
	password       string
	nonceGenerator NonceGenerator

	step                   int
	clientNonce            []byte
	clientFirstMessageBare string
	serverSignature        []byte
}

func (c *scramSaslClient) Start() (string, []byte, error) {
	generate := c.nonceGenerator
	if generate == nil {
		generate = generateClientNonce
	}
	nonce, err := generate()
	if err != nil {
		return c.mechanism, nil, fmt.Errorf("unable to generate client nonce: %v", err)
	}
	c.clientNonce = nonce

	c.clientFirstMessageBare = "n=" + escapeUsername(c.username) + ",r=" + string(c.clientNonce)
	return c.mechanism, []byte("n,," + c.clientFirstMessageBare), nil
}

func (c *scramSaslClient) Next(challenge []byte) ([]byte, error) {
	c.step++
	switch c.step {
	case 1:
		return c.handleServerFirst(challenge)
	case 2:
		return c.handleServerFinal(challenge)
	default:
		// The server keeps the conversation open until it reports
		// done; nothing remains to say.
		return []byte{}, nil
	}
}

func (c *scramSaslClient) Completed() bool {
	return c.step >= 2
}

func (c *scramSaslClient) handleServerFirst(challenge []byte) ([]byte, error) {
	fields := parsePayload(challenge)

	serverNonce, ok := fields["r"]
	if !ok {
		return nil, fmt.Errorf("%w: no nonce", ErrUnexpectedServerPayload)
	}
	if !strings.HasPrefix(serverNonce, string(c.clientNonce)) {
		return nil, ErrInvalidServerNonce
	}

	saltBase64, ok := fields["s"]
	if !ok {
		return nil, fmt.Errorf("%w: no salt", ErrUnexpectedServerPayload)
	}
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}

	iterationsField, ok := fields["i"]
	if !ok {
		return nil, fmt.Errorf("%w: no iteration count", ErrUnexpectedServerPayload)
	}
	iterations, err := strconv.Atoi(iterationsField)
	if err != nil || iterations < 1 {
		return nil, fmt.Errorf("%w: iteration count %q", ErrUnexpectedServerPayload, iterationsField)
	}

	h := c.hashNew()
	saltedPassword := pbkdf2.Key([]byte(c.password), salt, iterations, h.Size(), c.hashNew)

	clientKey := hmacDigest(c.hashNew, saltedPassword, []byte("Client Key"))
	h = c.hashNew()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,"))
	authMessage := c.clientFirstMessageBare + "," + string(challenge) + "," + channelBinding + ",r=" + serverNonce

	clientSignature := hmacDigest(c.hashNew, storedKey, []byte(authMessage))
	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	serverKey := hmacDigest(c.hashNew, saltedPassword, []byte("Server Key"))
	c.serverSignature = hmacDigest(c.hashNew, serverKey, []byte(authMessage))

	clientFinal := channelBinding + ",r=" + serverNonce + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(clientFinal), nil
}

func (c *scramSaslClient) handleServerFinal(challenge []byte) ([]byte, error) {
	fields := parsePayload(challenge)

	if e, ok := fields["e"]; ok {
		return nil, fmt.Errorf("%w: %s", ErrIncorrectCredentials, e)
	}

	verifier, ok := fields["v"]
	if !ok {
		return nil, fmt.Errorf("%w: no server signature", ErrUnexpectedServerPayload)
	}
	signature, err := base64.StdEncoding.DecodeString(verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}

	if !hmac.Equal(signature, c.serverSignature) {
		return nil, ErrInvalidServerSignature
	}

	return []byte{}, nil
}

func hmacDigest(hashNew func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(hashNew, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// parsePayload splits a SCRAM message into its comma-separated k=v
// fields.
func parsePayload(payload []byte) map[string]string {
	fields := make(map[string]string)
	for _, kv := range bytes.Split(payload, []byte{','}) {
		if idx := bytes.IndexByte(kv, '='); idx > 0 {
			fields[string(kv[:idx])] = string(kv[idx+1:])
		}
	}
	return fields
}

// escapeUsername escapes the SCRAM delimiters that may occur inside a
// username.
func escapeUsername(username string) string {
	username = strings.ReplaceAll(username, "=", "=3D")
	return strings.ReplaceAll(username, ",", "=2C")
}
