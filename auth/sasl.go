package auth

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/conn"
)

type saslClient interface {
	Start() (string, []byte, error)
	Next(challenge []byte) ([]byte, error)
	Completed() bool
}

type saslClientCloser interface {
	Close()
}

func conductSaslConversation(ctx context.Context, c conn.Connection, db string, client saslClient) error {
	if db == "" {
		db = defaultAuthDB
	}

	if closer, ok := client.(saslClientCloser); ok {
		defer closer.Close()
	}

	mech, payload, err := client.Start()
	if err != nil {
		return newError(err, mech)
	}

	saslStartCmd := bson.D{
		{Key: "saslStart", Value: 1},
		{Key: "mechanism", Value: mech},
		{Key: "payload", Value: payload},
	}

	type saslResponse struct {
		ConversationID int32  `bson:"conversationId"`
		Code           int32  `bson:"code"`
		Done           bool   `bson:"done"`
		Payload        []byte `bson:"payload"`
	}

	var saslResp saslResponse

	reply, err := c.RunCommand(ctx, db, saslStartCmd)
	if err != nil {
		return newError(translateCommandError(err), mech)
	}
	err = bson.Unmarshal(reply, &saslResp)
	if err != nil {
		return newError(err, mech)
	}

	cid := saslResp.ConversationID

	for {
		if saslResp.Code != 0 {
			return newError(fmt.Errorf("server returned code %d", saslResp.Code), mech)
		}

		if saslResp.Done && client.Completed() {
			return nil
		}

		payload, err = client.Next(saslResp.Payload)
		if err != nil {
			return newError(err, mech)
		}

		if saslResp.Done && client.Completed() {
			return nil
		}

		saslContinueCmd := bson.D{
			{Key: "saslContinue", Value: 1},
			{Key: "conversationId", Value: cid},
			{Key: "payload", Value: payload},
		}

		reply, err = c.RunCommand(ctx, db, saslContinueCmd)
		if err != nil {
			return newError(translateCommandError(err), mech)
		}
		saslResp = saslResponse{}
		err = bson.Unmarshal(reply, &saslResp)
		if err != nil {
			return newError(err, mech)
		}
	}
}
