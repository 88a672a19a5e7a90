package msg

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Reply is an OP_REPLY message.
type Reply struct {
	ReqID          int32
	RespTo         int32
	ResponseFlags  ReplyFlags
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	DocumentsBytes []byte
}

// ResponseTo gets the request id the message was in response to.
func (m *Reply) ResponseTo() int32 { return m.RespTo }

// Documents partitions the returned byte stream into its documents.
func (m *Reply) Documents() ([]bson.Raw, error) {
	docs := make([]bson.Raw, 0, m.NumberReturned)
	b := m.DocumentsBytes
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("document requires at least 4 bytes but only %d available", len(b))
		}
		n := int(readInt32(b, 0))
		if n < 5 || n > len(b) {
			return nil, fmt.Errorf("document length %d out of range (%d bytes remain)", n, len(b))
		}
		doc := bson.Raw(b[:n])
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		b = b[n:]
	}

	if len(docs) != int(m.NumberReturned) {
		return nil, fmt.Errorf("numberReturned is %d but reply carried %d documents", m.NumberReturned, len(docs))
	}

	return docs, nil
}
