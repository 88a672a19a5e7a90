package msg

import (
	"bytes"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/colemancda/MongoKitten/msg/compress"
)

const defaultEncodeBufferSize = 256

// Encoder encodes messages.
type Encoder interface {
	// Encode encodes a number of messages to the writer.
	Encode(io.Writer, ...Message) error
}

// Decoder decodes messages.
type Decoder interface {
	// Decode decodes one message from the reader.
	Decode(io.Reader) (Message, error)
}

// Codec encodes and decodes messages.
type Codec interface {
	Encoder
	Decoder
}

// NewWireProtocolCodec creates a Codec for the binary message format.
// The codec transparently unwraps OP_COMPRESSED frames using the
// registered compressors.
func NewWireProtocolCodec(compressors ...compress.Compressor) Codec {
	if len(compressors) == 0 {
		compressors = []compress.Compressor{
			compress.NewSnappyCompressor(),
			compress.NewZLibCompressor(),
			compress.NewZstdCompressor(),
		}
	}

	byID := make(map[uint8]compress.Compressor, len(compressors))
	for _, c := range compressors {
		byID[c.ID()] = c
	}

	return &wireProtocolCodec{
		lengthBytes: make([]byte, 4),
		compressors: byID,
	}
}

type wireProtocolCodec struct {
	lengthBytes []byte
	compressors map[uint8]compress.Compressor
}

func (c *wireProtocolCodec) Decode(reader io.Reader) (Message, error) {
	_, err := io.ReadFull(reader, c.lengthBytes)
	if err != nil {
		return nil, newProtocolError(err, "unable to decode message length")
	}

	length := readInt32(c.lengthBytes, 0)
	if length < 16 {
		return nil, newProtocolError(nil, fmt.Sprintf("message length %d is below the header size", length))
	}

	b := make([]byte, length)

	b[0] = c.lengthBytes[0]
	b[1] = c.lengthBytes[1]
	b[2] = c.lengthBytes[2]
	b[3] = c.lengthBytes[3]

	_, err = io.ReadFull(reader, b[4:])
	if err != nil {
		return nil, newProtocolError(err, "unable to decode message")
	}

	return c.decode(b)
}

func (c *wireProtocolCodec) Encode(writer io.Writer, msgs ...Message) error {
	b := make([]byte, 0, defaultEncodeBufferSize)

	var err error
	for _, m := range msgs {
		start := len(b)
		switch typedM := m.(type) {
		case *Query:
			b = addHeader(b, 0, typedM.ReqID, 0, int32(queryOpcode))
			b = addInt32(b, int32(typedM.Flags))
			b = addCString(b, typedM.FullCollectionName)
			b = addInt32(b, typedM.NumberToSkip)
			b = addInt32(b, typedM.NumberToReturn)
			b, err = addMarshalled(b, typedM.Query)
			if err != nil {
				return newProtocolError(err, "unable to marshal query")
			}
			if typedM.ReturnFieldsSelector != nil {
				b, err = addMarshalled(b, typedM.ReturnFieldsSelector)
				if err != nil {
					return newProtocolError(err, "unable to marshal return fields selector")
				}
			}
		case *Reply:
			b = addHeader(b, 0, typedM.ReqID, typedM.RespTo, int32(replyOpcode))
			b = addInt32(b, int32(typedM.ResponseFlags))
			b = addInt64(b, typedM.CursorID)
			b = addInt32(b, typedM.StartingFrom)
			b = addInt32(b, typedM.NumberReturned)
			b = append(b, typedM.DocumentsBytes...)
		case *Msg:
			b = addHeader(b, 0, typedM.ReqID, typedM.RespTo, int32(msgOpcode))
			b = addInt32(b, int32(typedM.FlagBits&^ChecksumPresent))
			for _, section := range typedM.Sections {
				b, err = addSection(b, section)
				if err != nil {
					return newProtocolError(err, "unable to marshal section")
				}
			}
		case *Compressed:
			b = addHeader(b, 0, typedM.ReqID, typedM.RespTo, int32(compressedOpcode))
			b = addInt32(b, typedM.OriginalOpcode)
			b = addInt32(b, typedM.UncompressedSize)
			b = append(b, typedM.CompressorID)
			b = append(b, typedM.CompressedMessage...)
		default:
			return newProtocolError(nil, fmt.Sprintf("cannot encode message type %T", m))
		}

		setInt32(b, int32(start), int32(len(b)-start))
	}

	_, err = writer.Write(b)
	if err != nil {
		return newProtocolError(err, "unable to encode messages")
	}
	return nil
}

func (c *wireProtocolCodec) decode(b []byte) (Message, error) {
	requestID := readInt32(b, 4)
	responseTo := readInt32(b, 8)
	op := readInt32(b, 12)

	switch opcode(op) {
	case queryOpcode:
		return c.decodeQuery(b, requestID)
	case replyOpcode:
		if len(b) < 36 {
			return nil, newProtocolError(nil, "truncated OP_REPLY")
		}
		replyMessage := &Reply{
			ReqID:  requestID,
			RespTo: responseTo,
		}
		replyMessage.ResponseFlags = ReplyFlags(readInt32(b, 16))
		replyMessage.CursorID = readInt64(b, 20)
		replyMessage.StartingFrom = readInt32(b, 28)
		replyMessage.NumberReturned = readInt32(b, 32)
		replyMessage.DocumentsBytes = b[36:]
		return replyMessage, nil
	case msgOpcode:
		return c.decodeMsg(b, requestID, responseTo)
	case compressedOpcode:
		return c.decodeCompressed(b, requestID, responseTo)
	}

	return nil, newProtocolError(nil, fmt.Sprintf("opcode %d not implemented", op))
}

func (c *wireProtocolCodec) decodeQuery(b []byte, requestID int32) (Message, error) {
	if len(b) < 25 {
		return nil, newProtocolError(nil, "truncated OP_QUERY")
	}

	query := &Query{
		ReqID: requestID,
		Flags: QueryFlags(readInt32(b, 16)),
	}

	rest := b[20:]
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return nil, newProtocolError(nil, "unterminated collection name")
	}
	query.FullCollectionName = string(rest[:idx])
	rest = rest[idx+1:]

	if len(rest) < 8 {
		return nil, newProtocolError(nil, "truncated OP_QUERY")
	}
	query.NumberToSkip = readInt32(rest, 0)
	query.NumberToReturn = readInt32(rest, 4)

	doc, rest, err := readDocument(rest[8:])
	if err != nil {
		return nil, newProtocolError(err, "unable to decode query document")
	}
	query.Query = doc

	if len(rest) > 0 {
		selector, _, err := readDocument(rest)
		if err != nil {
			return nil, newProtocolError(err, "unable to decode return fields selector")
		}
		query.ReturnFieldsSelector = selector
	}

	return query, nil
}

func (c *wireProtocolCodec) decodeMsg(b []byte, requestID, responseTo int32) (Message, error) {
	if len(b) < 20 {
		return nil, newProtocolError(nil, "truncated OP_MSG")
	}

	m := &Msg{
		ReqID:    requestID,
		RespTo:   responseTo,
		FlagBits: MsgFlags(readInt32(b, 16)),
	}

	body := b[20:]
	if m.FlagBits&ChecksumPresent != 0 {
		if len(body) < 4 {
			return nil, newProtocolError(nil, "truncated OP_MSG checksum")
		}
		// The checksum is never requested by this client; skip it.
		body = body[:len(body)-4]
	}

	for len(body) > 0 {
		kind := body[0]
		body = body[1:]

		switch kind {
		case 0:
			doc, rest, err := readDocument(body)
			if err != nil {
				return nil, newProtocolError(err, "unable to decode OP_MSG body section")
			}
			m.Sections = append(m.Sections, SectionBody{Document: doc})
			body = rest
		case 1:
			if len(body) < 4 {
				return nil, newProtocolError(nil, "truncated OP_MSG document sequence")
			}
			size := int(readInt32(body, 0))
			if size < 4 || size > len(body) {
				return nil, newProtocolError(nil, fmt.Sprintf("document sequence size %d out of range", size))
			}
			section := body[4:size]
			body = body[size:]

			idx := bytes.IndexByte(section, 0)
			if idx < 0 {
				return nil, newProtocolError(nil, "unterminated document sequence identifier")
			}
			seq := SectionDocumentSequence{Identifier: string(section[:idx])}
			section = section[idx+1:]
			for len(section) > 0 {
				doc, rest, err := readDocument(section)
				if err != nil {
					return nil, newProtocolError(err, "unable to decode OP_MSG sequence document")
				}
				seq.Documents = append(seq.Documents, doc)
				section = rest
			}
			m.Sections = append(m.Sections, seq)
		default:
			return nil, newProtocolError(nil, fmt.Sprintf("unknown OP_MSG section kind %d", kind))
		}
	}

	return m, nil
}

func (c *wireProtocolCodec) decodeCompressed(b []byte, requestID, responseTo int32) (Message, error) {
	if len(b) < 25 {
		return nil, newProtocolError(nil, "truncated OP_COMPRESSED")
	}

	originalOpcode := readInt32(b, 16)
	uncompressedSize := readInt32(b, 20)
	compressorID := b[24]

	compressor, ok := c.compressors[compressorID]
	if !ok {
		return nil, newProtocolError(nil, fmt.Sprintf("no compressor registered for id %d", compressorID))
	}

	inner := make([]byte, 16+uncompressedSize)
	err := compressor.Decompress(bytes.NewReader(b[25:]), inner[16:])
	if err != nil {
		return nil, newProtocolError(err, fmt.Sprintf("unable to decompress message using %s", compressor.Name()))
	}

	setInt32(inner, 0, int32(len(inner)))
	setInt32(inner, 4, requestID)
	setInt32(inner, 8, responseTo)
	setInt32(inner, 12, originalOpcode)

	return c.decode(inner)
}

// Compress encodes a request and wraps its body in an OP_COMPRESSED
// frame using the given compressor.
func Compress(encoder Encoder, req Request, compressor compress.Compressor) (*Compressed, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, req); err != nil {
		return nil, err
	}
	b := buf.Bytes()

	var compressed bytes.Buffer
	if err := compressor.Compress(b[16:], &compressed); err != nil {
		return nil, newProtocolError(err, fmt.Sprintf("unable to compress message using %s", compressor.Name()))
	}

	return &Compressed{
		ReqID:             req.RequestID(),
		OriginalOpcode:    readInt32(b, 12),
		UncompressedSize:  int32(len(b) - 16),
		CompressorID:      compressor.ID(),
		CompressedMessage: compressed.Bytes(),
	}, nil
}

func readDocument(b []byte) (bson.Raw, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("document requires at least 4 bytes but only %d available", len(b))
	}
	n := int(readInt32(b, 0))
	if n < 5 || n > len(b) {
		return nil, nil, fmt.Errorf("document length %d out of range (%d bytes remain)", n, len(b))
	}
	doc := bson.Raw(b[:n])
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}
	return doc, b[n:], nil
}

func addSection(b []byte, section Section) ([]byte, error) {
	b = append(b, section.Kind())

	switch typedS := section.(type) {
	case SectionBody:
		return addMarshalled(b, typedS.Document)
	case SectionDocumentSequence:
		start := len(b)
		b = addInt32(b, 0)
		b = addCString(b, typedS.Identifier)
		var err error
		for _, doc := range typedS.Documents {
			b, err = addMarshalled(b, doc)
			if err != nil {
				return nil, err
			}
		}
		setInt32(b, int32(start), int32(len(b)-start))
		return b, nil
	}

	return nil, fmt.Errorf("cannot encode section type %T", section)
}

func addCString(b []byte, s string) []byte {
	b = append(b, []byte(s)...)
	return append(b, 0)
}

func addInt32(b []byte, i int32) []byte {
	return append(b, byte(i), byte(i>>8), byte(i>>16), byte(i>>24))
}

func addInt64(b []byte, i int64) []byte {
	return append(b, byte(i), byte(i>>8), byte(i>>16), byte(i>>24), byte(i>>32), byte(i>>40), byte(i>>48), byte(i>>56))
}

func addMarshalled(b []byte, data interface{}) ([]byte, error) {
	if data == nil {
		return append(b, 5, 0, 0, 0, 0), nil
	}

	switch typedD := data.(type) {
	case []byte:
		return append(b, typedD...), nil
	case bson.Raw:
		return append(b, typedD...), nil
	}

	dataBytes, err := bson.Marshal(data)
	if err != nil {
		return nil, err
	}

	return append(b, dataBytes...), nil
}

func setInt32(b []byte, pos int32, i int32) {
	b[pos] = byte(i)
	b[pos+1] = byte(i >> 8)
	b[pos+2] = byte(i >> 16)
	b[pos+3] = byte(i >> 24)
}

func addHeader(b []byte, length, requestID, responseTo, opCode int32) []byte {
	b = addInt32(b, length)
	b = addInt32(b, requestID)
	b = addInt32(b, responseTo)
	return addInt32(b, opCode)
}

func readInt32(b []byte, pos int32) int32 {
	return (int32(b[pos+0])) |
		(int32(b[pos+1]) << 8) |
		(int32(b[pos+2]) << 16) |
		(int32(b[pos+3]) << 24)
}

func readInt64(b []byte, pos int32) int64 {
	return (int64(b[pos+0])) |
		(int64(b[pos+1]) << 8) |
		(int64(b[pos+2]) << 16) |
		(int64(b[pos+3]) << 24) |
		(int64(b[pos+4]) << 32) |
		(int64(b[pos+5]) << 40) |
		(int64(b[pos+6]) << 48) |
		(int64(b[pos+7]) << 56)
}
