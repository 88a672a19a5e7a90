package conn_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	. "github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/msg"
)

// serverReply directs the test server to answer the given request id
// with the given document.
type serverReply struct {
	ReqID int32
	Doc   bson.D
}

// commandHandler inspects one received command and returns the
// replies to send, in order. Returning nil sends nothing.
type commandHandler func(name string, cmd bson.Raw, reqID int32) []serverReply

// testServer speaks the wire protocol over an in-memory pipe and
// keeps a record of what arrived.
type testServer struct {
	mu         sync.Mutex
	requestIDs []int32
	opcodes    []int32
	names      []string
}

func (s *testServer) record(name string, reqID, opcode int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestIDs = append(s.requestIDs, reqID)
	s.opcodes = append(s.opcodes, opcode)
	s.names = append(s.names, name)
}

func (s *testServer) commandRequestIDs() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32{}, s.requestIDs...)
}

func (s *testServer) opcodesSeen() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32{}, s.opcodes...)
}

// dialer returns an EndpointDialer that connects to a fresh server
// goroutine running the handler.
func (s *testServer) dialer(handler commandHandler) EndpointDialer {
	return func(ctx context.Context, endpoint Endpoint) (net.Conn, error) {
		client, server := net.Pipe()
		go s.serve(server, handler)
		return client, nil
	}
}

func (s *testServer) serve(c net.Conn, handler commandHandler) {
	defer c.Close()

	codec := msg.NewWireProtocolCodec()
	kindByRequest := make(map[int32]bool)

	for {
		frame, opcode, err := readFrame(c)
		if err != nil {
			return
		}

		decoded, err := codec.Decode(bytes.NewReader(frame))
		if err != nil {
			return
		}

		var cmd bson.Raw
		var reqID int32
		var isMsg bool
		switch typedM := decoded.(type) {
		case *msg.Query:
			cmd = typedM.Query.(bson.Raw)
			reqID = typedM.ReqID
		case *msg.Msg:
			cmd, err = typedM.CommandDocument()
			if err != nil {
				return
			}
			reqID = typedM.ReqID
			isMsg = true
		default:
			return
		}
		kindByRequest[reqID] = isMsg

		name := commandName(cmd)
		s.record(name, reqID, opcode)

		if name == "hangup" {
			return
		}

		for _, reply := range handler(name, cmd, reqID) {
			docBytes, err := bson.Marshal(reply.Doc)
			if err != nil {
				return
			}

			var response msg.Message
			if kindByRequest[reply.ReqID] {
				response = &msg.Msg{
					RespTo:   reply.ReqID,
					Sections: []msg.Section{msg.SectionBody{Document: docBytes}},
				}
			} else {
				response = &msg.Reply{
					RespTo:         reply.ReqID,
					NumberReturned: 1,
					DocumentsBytes: docBytes,
				}
			}
			if err := codec.Encode(c, response); err != nil {
				return
			}
		}
	}
}

func readFrame(r io.Reader) ([]byte, int32, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}
	length := int32(header[0]) | int32(header[1])<<8 | int32(header[2])<<16 | int32(header[3])<<24
	if length < 16 {
		return nil, 0, errors.New("short frame")
	}

	frame := make([]byte, length)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return nil, 0, err
	}

	opcode := int32(frame[12]) | int32(frame[13])<<8 | int32(frame[14])<<16 | int32(frame[15])<<24
	return frame, opcode, nil
}

func commandName(cmd bson.Raw) string {
	elements, err := cmd.Elements()
	if err != nil || len(elements) == 0 {
		return ""
	}
	return elements[0].Key()
}

// handshake answers the commands Dial issues, echoing anything else
// through next.
func handshake(maxWireVersion int32, compression []string, next commandHandler) commandHandler {
	return func(name string, cmd bson.Raw, reqID int32) []serverReply {
		switch name {
		case "ismaster":
			doc := bson.D{
				{Key: "ok", Value: 1},
				{Key: "ismaster", Value: true},
				{Key: "maxBsonObjectSize", Value: int32(16777216)},
				{Key: "maxMessageSizeBytes", Value: int32(48000000)},
				{Key: "maxWriteBatchSize", Value: int32(100000)},
				{Key: "minWireVersion", Value: int32(0)},
				{Key: "maxWireVersion", Value: maxWireVersion},
			}
			if len(compression) > 0 {
				doc = append(doc, bson.E{Key: "compression", Value: compression})
			}
			return []serverReply{{reqID, doc}}
		case "buildInfo":
			return []serverReply{{reqID, bson.D{
				{Key: "ok", Value: 1},
				{Key: "version", Value: "4.0.0"},
				{Key: "gitVersion", Value: "deadbeef"},
				{Key: "versionArray", Value: bson.A{int32(4), int32(0), int32(0), int32(0)}},
			}}}
		case "getLastError":
			return []serverReply{{reqID, bson.D{
				{Key: "ok", Value: 1},
				{Key: "connectionId", Value: int32(42)},
			}}}
		}
		if next == nil {
			return []serverReply{{reqID, bson.D{{Key: "ok", Value: 1}}}}
		}
		return next(name, cmd, reqID)
	}
}

func dialTestConn(t *testing.T, server *testServer, handler commandHandler, opts ...Option) Connection {
	t.Helper()

	opts = append(opts, WithEndpointDialer(server.dialer(handler)), WithAppName("mongokitten-test"))
	subject, err := Dial(context.Background(), "localhost:27017", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { subject.Close() })
	return subject
}

func TestConn_Dial_handshake(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil))

	require.True(t, subject.Alive())
	require.False(t, subject.Expired())

	desc := subject.Desc()
	require.NotNil(t, desc)
	require.Equal(t, uint32(16777216), desc.MaxBSONObjectSize)
	require.Equal(t, int32(4), desc.WireVersion.Max)
	require.Equal(t, "4.0.0", desc.Version.String())
	require.True(t, desc.Version.AtLeast(4, 0))
	require.False(t, desc.Version.AtLeast(4, 2))
}

func TestConn_RunCommand_isMaster(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil))

	reply, err := subject.RunCommand(context.Background(), "admin", bson.D{{Key: "ismaster", Value: 1}})
	require.NoError(t, err)
	require.True(t, reply.Lookup("ismaster").Boolean())

	// Every reply was routed by responseTo, so every request id the
	// server saw was allocated by this connection, exactly once.
	seen := map[int32]bool{}
	for _, id := range server.commandRequestIDs() {
		require.False(t, seen[id], "request id %d appeared twice", id)
		seen[id] = true
	}
}

func TestConn_RunCommand_routes_out_of_order_replies(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var parked *serverReply

	handler := handshake(4, nil, func(name string, cmd bson.Raw, reqID int32) []serverReply {
		n := cmd.Lookup("n").Int32()
		reply := serverReply{reqID, bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: n}}}

		mu.Lock()
		defer mu.Unlock()
		if parked == nil {
			// Hold the first ping back until the second arrives.
			parked = &reply
			return nil
		}
		return []serverReply{reply, *parked}
	})

	server := &testServer{}
	subject := dialTestConn(t, server, handler)

	var wg sync.WaitGroup
	results := make([]int32, 2)
	for i := int32(0); i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}, {Key: "n", Value: i}})
			require.NoError(t, err)
			results[i] = reply.Lookup("n").Int32()
		}()
	}
	wg.Wait()

	require.Equal(t, []int32{0, 1}, results)
}

func TestConn_RunCommand_concurrent_submitters(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	handler := handshake(4, nil, func(name string, cmd bson.Raw, reqID int32) []serverReply {
		return []serverReply{{reqID, bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: cmd.Lookup("n").Int32()}}}}
	})
	subject := dialTestConn(t, server, handler)

	const submitters = 20

	var wg sync.WaitGroup
	for i := int32(0); i < submitters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}, {Key: "n", Value: i}})
			require.NoError(t, err)
			require.Equal(t, i, reply.Lookup("n").Int32())
		}()
	}
	wg.Wait()

	ids := server.commandRequestIDs()
	seen := map[int32]bool{}
	for _, id := range ids {
		require.Positive(t, id)
		require.False(t, seen[id], "request id %d appeared twice", id)
		seen[id] = true
	}
}

func TestConn_server_hangup_fails_outstanding_awaiters(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	handler := handshake(4, nil, func(name string, cmd bson.Raw, reqID int32) []serverReply {
		// A ping never gets an answer; the following hangup tears
		// the connection down underneath it.
		return nil
	})
	subject := dialTestConn(t, server, handler)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
		require.Error(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "hangup", Value: 1}})
	require.Error(t, err)
	wg.Wait()

	require.False(t, subject.Alive())

	_, err = subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.Error(t, err)
}

func TestConn_RunCommand_after_close(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil))

	require.NoError(t, subject.Close())
	require.False(t, subject.Alive())

	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConn_RunCommand_command_error_leaves_connection_healthy(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	handler := handshake(4, nil, func(name string, cmd bson.Raw, reqID int32) []serverReply {
		if name == "fail" {
			return []serverReply{{reqID, bson.D{
				{Key: "ok", Value: 0},
				{Key: "errmsg", Value: "no such command"},
				{Key: "code", Value: int32(59)},
				{Key: "codeName", Value: "CommandNotFound"},
			}}}
		}
		return []serverReply{{reqID, bson.D{{Key: "ok", Value: 1}}}}
	})
	subject := dialTestConn(t, server, handler)

	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "fail", Value: 1}})
	var commandErr *CommandError
	require.ErrorAs(t, err, &commandErr)
	require.Equal(t, int32(59), commandErr.Code)
	require.Equal(t, "CommandNotFound", commandErr.Name)
	require.Equal(t, "no such command", commandErr.Message)
	require.True(t, IsCommandNotFound(err))

	require.True(t, subject.Alive())

	_, err = subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)
}

func TestConn_RunCommand_document_too_large(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil))

	big := make([]byte, 17*1024*1024)
	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "insert", Value: "foo"}, {Key: "blob", Value: big}})
	require.ErrorIs(t, err, ErrDocumentTooLarge)

	require.True(t, subject.Alive())
}

func TestConn_uses_op_msg_when_supported(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(8, nil, nil))

	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)

	opcodes := server.opcodesSeen()
	// The handshake runs before the wire version is known, so it uses
	// OP_QUERY; the ping must use OP_MSG.
	require.Equal(t, int32(2004), opcodes[0])
	require.Equal(t, int32(2013), opcodes[len(opcodes)-1])
}

func TestConn_uses_op_query_for_old_servers(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil))

	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)

	for _, opcode := range server.opcodesSeen() {
		require.Equal(t, int32(2004), opcode)
	}
}

func TestConn_compresses_after_negotiation(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(8, []string{"snappy"}, nil), WithCompressors("snappy"))

	_, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)

	opcodes := server.opcodesSeen()
	require.Equal(t, int32(2012), opcodes[len(opcodes)-1])

	// The handshake itself must never be compressed.
	require.Equal(t, int32(2004), opcodes[0])
}

func TestConn_abandoned_command_discards_reply(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := &testServer{}
	handler := handshake(4, nil, func(name string, cmd bson.Raw, reqID int32) []serverReply {
		if name == "slow" {
			<-release
		}
		return []serverReply{{reqID, bson.D{{Key: "ok", Value: 1}, {Key: "cmd", Value: name}}}}
	})
	subject := dialTestConn(t, server, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := subject.RunCommand(ctx, "test", bson.D{{Key: "slow", Value: 1}})
	require.ErrorIs(t, err, context.Canceled)

	close(release)

	// The discarded reply must not poison the next exchange.
	reply, err := subject.RunCommand(context.Background(), "test", bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)
	require.Equal(t, "ping", reply.Lookup("cmd").StringValue())
	require.True(t, subject.Alive())
}

func TestConn_Expired_due_to_idle_time(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil), WithIdleTimeout(50*time.Millisecond))

	require.False(t, subject.Expired())
	time.Sleep(100 * time.Millisecond)
	require.True(t, subject.Expired())
}

func TestConn_Expired_due_to_life_time(t *testing.T) {
	t.Parallel()

	server := &testServer{}
	subject := dialTestConn(t, server, handshake(4, nil, nil), WithLifeTimeout(50*time.Millisecond))

	require.False(t, subject.Expired())
	time.Sleep(100 * time.Millisecond)
	require.True(t, subject.Expired())
}
