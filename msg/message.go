package msg

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Message represents a MongoDB wire protocol message.
type Message interface {
	msg()
}

// Request is a message sent to the server.
type Request interface {
	Message
	RequestID() int32
}

// Response is a message received from the server.
type Response interface {
	Message
	ResponseTo() int32
}

type opcode int32

const (
	replyOpcode      opcode = 1
	queryOpcode      opcode = 2004
	compressedOpcode opcode = 2012
	msgOpcode        opcode = 2013
)

// QueryFlags are the flags of an OP_QUERY message.
type QueryFlags int32

// These constants are the individual flags of an OP_QUERY message.
const (
	_ QueryFlags = 1 << iota
	TailableCursor
	SlaveOK
	OplogReplay
	NoCursorTimeout
	AwaitData
	Exhaust
	Partial
)

// ReplyFlags are the flags of an OP_REPLY message.
type ReplyFlags int32

// These constants are the individual flags of an OP_REPLY message.
const (
	CursorNotFound ReplyFlags = 1 << iota
	QueryFailure
	_ // shard config stale, handled by mongos
	AwaitCapable
)

// MsgFlags are the flag bits of an OP_MSG message.
type MsgFlags uint32

// These constants are the individual flag bits of an OP_MSG message.
const (
	ChecksumPresent MsgFlags = 1 << iota
	MoreToCome

	ExhaustAllowed MsgFlags = 1 << 16
)

func (m *Query) msg()      {}
func (m *Reply) msg()      {}
func (m *Msg) msg()        {}
func (m *Compressed) msg() {}

// Query is an OP_QUERY message. It remains in use for commands against
// the "$cmd" pseudo-collection of a database before the server's wire
// version is known and against servers that do not speak OP_MSG.
type Query struct {
	ReqID                int32
	Flags                QueryFlags
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                interface{}
	ReturnFieldsSelector interface{}
}

// RequestID gets the request id of the message.
func (m *Query) RequestID() int32 { return m.ReqID }

// Msg is an OP_MSG message, the command format for servers with wire
// version 6 and above.
type Msg struct {
	ReqID    int32
	RespTo   int32
	FlagBits MsgFlags
	Sections []Section
}

// RequestID gets the request id of the message.
func (m *Msg) RequestID() int32 { return m.ReqID }

// ResponseTo gets the request id the message was in response to.
func (m *Msg) ResponseTo() int32 { return m.RespTo }

// CommandDocument returns the single document of the kind 0 section.
func (m *Msg) CommandDocument() (bson.Raw, error) {
	for _, section := range m.Sections {
		body, ok := section.(SectionBody)
		if !ok {
			continue
		}
		switch doc := body.Document.(type) {
		case bson.Raw:
			return doc, nil
		case []byte:
			return bson.Raw(doc), nil
		}
	}
	return nil, errors.New("OP_MSG has no body section")
}

// Section is a section of an OP_MSG message.
type Section interface {
	Kind() uint8
}

// SectionBody is a kind 0 section carrying a single document.
type SectionBody struct {
	Document interface{}
}

// Kind implements the Section interface.
func (s SectionBody) Kind() uint8 { return 0 }

// SectionDocumentSequence is a kind 1 section carrying an identified
// sequence of documents.
type SectionDocumentSequence struct {
	Identifier string
	Documents  []interface{}
}

// Kind implements the Section interface.
func (s SectionDocumentSequence) Kind() uint8 { return 1 }

// Compressed is an OP_COMPRESSED message wrapping another message.
type Compressed struct {
	ReqID             int32
	RespTo            int32
	OriginalOpcode    int32
	UncompressedSize  int32
	CompressorID      uint8
	CompressedMessage []byte
}

// RequestID gets the request id of the message.
func (m *Compressed) RequestID() int32 { return m.ReqID }

// ResponseTo gets the request id the message was in response to.
func (m *Compressed) ResponseTo() int32 { return m.RespTo }
