// Package conntest provides a scripted connection for package tests.
package conntest

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/colemancda/MongoKitten/conn"
)

// SentCommand records one command submitted to the mock.
type SentCommand struct {
	DB      string
	Command bson.Raw
}

// MockConnection replays queued reply documents in order and records
// every command it is handed. Replies whose "ok" field is not 1 are
// surfaced as a *conn.CommandError, mirroring a live connection.
type MockConnection struct {
	Dead      bool
	Sent      []SentCommand
	ResponseQ []bson.Raw
	RunErr    error
	DescValue *conn.Desc
}

var _ conn.Connection = (*MockConnection)(nil)

func (c *MockConnection) RunCommand(ctx context.Context, db string, cmd interface{}) (bson.Raw, error) {
	if c.RunErr != nil {
		err := c.RunErr
		c.RunErr = nil
		return nil, err
	}
	if c.Dead {
		return nil, conn.ErrConnectionClosed
	}

	var cmdBytes []byte
	var err error
	switch typedC := cmd.(type) {
	case bson.Raw:
		cmdBytes = typedC
	case []byte:
		cmdBytes = typedC
	default:
		cmdBytes, err = bson.Marshal(cmd)
		if err != nil {
			return nil, err
		}
	}
	c.Sent = append(c.Sent, SentCommand{DB: db, Command: bson.Raw(cmdBytes)})

	if len(c.ResponseQ) == 0 {
		return nil, fmt.Errorf("no response queued for command %v", bson.Raw(cmdBytes))
	}
	reply := c.ResponseQ[0]
	c.ResponseQ = c.ResponseQ[1:]

	if !replyOK(reply) {
		return nil, commandError(reply)
	}

	return reply, nil
}

func (c *MockConnection) Desc() *conn.Desc {
	if c.DescValue != nil {
		return c.DescValue
	}
	return &conn.Desc{}
}

func (c *MockConnection) NextObjectID() primitive.ObjectID {
	return primitive.NewObjectID()
}

func (c *MockConnection) Alive() bool {
	return !c.Dead
}

func (c *MockConnection) Expired() bool {
	return c.Dead
}

func (c *MockConnection) Close() error {
	c.Dead = true
	return nil
}

// CreateCommandReply marshals a command reply document.
func CreateCommandReply(doc interface{}) bson.Raw {
	b, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return bson.Raw(b)
}

func replyOK(doc bson.Raw) bool {
	v, err := doc.LookupErr("ok")
	if err != nil {
		return false
	}
	switch v.Type {
	case bson.TypeInt32:
		return v.Int32() == 1
	case bson.TypeInt64:
		return v.Int64() == 1
	case bson.TypeDouble:
		return v.Double() == 1
	case bson.TypeBoolean:
		return v.Boolean()
	}
	return false
}

func commandError(doc bson.Raw) error {
	commandErr := &conn.CommandError{Message: "command failed"}
	if v, err := doc.LookupErr("errmsg"); err == nil {
		commandErr.Message, _ = v.StringValueOK()
	}
	if v, err := doc.LookupErr("codeName"); err == nil {
		commandErr.Name, _ = v.StringValueOK()
	}
	if v, err := doc.LookupErr("code"); err == nil {
		commandErr.Code, _ = v.Int32OK()
	}
	return commandErr
}
