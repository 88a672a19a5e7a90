package conn

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/colemancda/MongoKitten/internal"
	"github.com/colemancda/MongoKitten/msg"
	"github.com/colemancda/MongoKitten/msg/compress"
)

// defaultMaxBSONObjectSize applies until the handshake reports the
// server's actual limit.
const defaultMaxBSONObjectSize = 16 * 1024 * 1024

// opMsgWireVersion is the first wire version that speaks OP_MSG.
const opMsgWireVersion = 6

var globalClientConnectionID int32

func nextClientConnectionID() int32 {
	return atomic.AddInt32(&globalClientConnectionID, 1)
}

// Dialer dials a connection.
type Dialer func(ctx context.Context, endpoint Endpoint, opts ...Option) (Connection, error)

// Connection is a full-duplex channel to a server. Commands may be
// submitted concurrently from any number of goroutines; replies are
// routed back to their submitters by request id.
type Connection interface {
	// RunCommand runs a command against a database and returns the
	// server's reply document. The reply is a success: a reply whose
	// "ok" field is not 1 is surfaced as a *CommandError.
	RunCommand(ctx context.Context, db string, cmd interface{}) (bson.Raw, error)
	// Desc gets a description of the server, available after the
	// handshake.
	Desc() *Desc
	// NextObjectID generates an ObjectID from the connection's
	// generator.
	NextObjectID() primitive.ObjectID
	// Alive indicates whether the connection is still usable.
	Alive() bool
	// Expired indicates whether the connection outlived its idle or
	// lifetime allowance.
	Expired() bool
	// Close closes the connection, failing all outstanding commands.
	Close() error
}

// Dial opens, handshakes, and returns a connection to a server.
func Dial(ctx context.Context, endpoint Endpoint, opts ...Option) (Connection, error) {
	cfg := newConfig(opts...)

	transport, err := cfg.dialer(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s[-%d]", endpoint, nextClientConnectionID())

	c := &connectionImpl{
		id:          id,
		codec:       cfg.codec,
		ep:          endpoint,
		transport:   transport,
		pending:     make(map[int32]chan msg.Response),
		idGen:       newObjectIDGenerator(),
		logger:      cfg.logger.WithField("connection", id),
		idleTimeout: cfg.idleTimeout,
		lifeTimeout: cfg.lifeTimeout,
		createdAt:   time.Now(),
		lastUsedAt:  time.Now(),
	}

	go c.readLoop()

	err = c.initialize(ctx, cfg.appName, cfg.compressors)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

type connectionImpl struct {
	// if id is negative, it's the client identifier; otherwise it's the same
	// as the id the server is using.
	id        string
	codec     msg.Codec
	ep        Endpoint
	transport io.ReadWriteCloser
	idGen     *objectIDGenerator
	logger    *logrus.Entry

	idleTimeout time.Duration
	lifeTimeout time.Duration
	createdAt   time.Time

	// writeMu serializes frame writes; one frame body is on the wire
	// at any moment.
	writeMu sync.Mutex

	// mu guards request id allocation, the in-flight map, the server
	// description, and the terminal state. Allocation and awaiter
	// registration form a single critical section.
	mu            sync.Mutex
	pending       map[int32]chan msg.Response
	lastRequestID int32
	desc          *Desc
	compressor    compress.Compressor
	lastUsedAt    time.Time
	dead          bool
	err           error
}

func (c *connectionImpl) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *connectionImpl) log() *logrus.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *connectionImpl) Desc() *Desc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}

func (c *connectionImpl) NextObjectID() primitive.ObjectID {
	return c.idGen.Next()
}

func (c *connectionImpl) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

func (c *connectionImpl) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return true
	}
	if c.idleTimeout > 0 && time.Since(c.lastUsedAt) > c.idleTimeout {
		return true
	}
	if c.lifeTimeout > 0 && time.Since(c.createdAt) > c.lifeTimeout {
		return true
	}
	return false
}

func (c *connectionImpl) Close() error {
	c.fatal(ErrConnectionClosed)
	return nil
}

func (c *connectionImpl) RunCommand(ctx context.Context, db string, cmd interface{}) (bson.Raw, error) {
	cmdBytes, err := marshalCommand(cmd)
	if err != nil {
		return nil, c.wrapError(err, "unable to marshal command")
	}

	maxSize := uint32(defaultMaxBSONObjectSize)

	c.mu.Lock()
	if c.dead {
		inner := c.err
		c.mu.Unlock()
		return nil, c.wrapError(inner, "failed sending command")
	}
	if c.desc != nil && c.desc.MaxBSONObjectSize > 0 {
		maxSize = c.desc.MaxBSONObjectSize
	}
	if uint32(len(cmdBytes)) > maxSize {
		c.mu.Unlock()
		return nil, c.wrapError(ErrDocumentTooLarge, fmt.Sprintf("command document is %d bytes, limit is %d", len(cmdBytes), maxSize))
	}

	requestID := c.nextRequestIDLocked()
	ch := make(chan msg.Response, 1)
	c.pending[requestID] = ch
	c.lastUsedAt = time.Now()
	useMsg := c.desc != nil && c.desc.WireVersion.Max >= opMsgWireVersion
	compressor := c.compressor
	c.mu.Unlock()

	var request msg.Request
	if useMsg {
		request = msg.NewMsgCommand(requestID, db, cmdBytes)
	} else {
		request = msg.NewCommand(requestID, db, true, bson.Raw(cmdBytes))
	}

	if compressor != nil && !isUncompressible(commandName(cmdBytes)) {
		request, err = msg.Compress(c.codec, request, compressor)
		if err != nil {
			c.abandon(requestID)
			return nil, c.wrapError(err, "failed compressing command")
		}
	}

	c.writeMu.Lock()
	err = c.codec.Encode(c.transport, request)
	c.writeMu.Unlock()
	if err != nil {
		c.fatal(err)
		return nil, c.wrapError(err, "failed writing")
	}

	select {
	case response, ok := <-ch:
		if !ok {
			c.mu.Lock()
			inner := c.err
			c.mu.Unlock()
			return nil, c.wrapError(inner, "connection failed awaiting reply")
		}
		return c.commandDocument(response)
	case <-ctx.Done():
		// The in-flight entry stays registered; the reply is
		// discarded into the buffered channel when it arrives.
		return nil, ctx.Err()
	}
}

// nextRequestIDLocked allocates the next request id. Ids are positive
// and wrap back to 1 on overflow. Callers hold c.mu.
func (c *connectionImpl) nextRequestIDLocked() int32 {
	c.lastRequestID++
	if c.lastRequestID < 1 {
		c.lastRequestID = 1
	}
	return c.lastRequestID
}

// abandon removes an in-flight entry before its frame was written.
func (c *connectionImpl) abandon(requestID int32) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// readLoop is the sole reader of the transport. It routes each frame
// to its awaiter by responseTo and tears the connection down on the
// first transport or parse error.
func (c *connectionImpl) readLoop() {
	for {
		message, err := c.codec.Decode(c.transport)
		if err != nil {
			c.fatal(err)
			return
		}

		response, ok := message.(msg.Response)
		if !ok {
			c.fatal(internal.WrapErrorf(nil, "received non-response message type %T", message))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[response.ResponseTo()]
		if ok {
			delete(c.pending, response.ResponseTo())
		}
		c.mu.Unlock()

		if !ok {
			c.log().WithField("responseTo", response.ResponseTo()).Warn("discarding reply with no awaiter")
			continue
		}

		ch <- response
	}
}

// fatal transitions the connection to its terminal state, failing
// every outstanding awaiter. It is idempotent; the first error wins.
func (c *connectionImpl) fatal(err error) {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	c.err = err
	pending := c.pending
	c.pending = nil
	logger := c.logger
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	if err != ErrConnectionClosed {
		logger.WithError(err).Debug("connection reached terminal state")
	}

	if closeErr := c.transport.Close(); closeErr != nil {
		logger.WithError(closeErr).Debug("failed closing transport")
	}
}

// commandDocument extracts the single reply document of a command and
// interprets its "ok" field.
func (c *connectionImpl) commandDocument(response msg.Response) (bson.Raw, error) {
	var doc bson.Raw

	switch typedR := response.(type) {
	case *msg.Reply:
		if typedR.NumberReturned == 0 {
			return nil, ErrNoDocCommandResponse
		}
		if typedR.NumberReturned > 1 {
			return nil, ErrMultiDocCommandResponse
		}

		docs, err := typedR.Documents()
		if err != nil {
			return nil, c.wrapError(err, "failed to read command response document")
		}
		doc = docs[0]

		if typedR.ResponseFlags&msg.QueryFailure != 0 {
			return nil, commandErrorFromDocument(doc)
		}
	case *msg.Msg:
		var err error
		doc, err = typedR.CommandDocument()
		if err != nil {
			return nil, c.wrapError(err, "failed to read command response document")
		}
	default:
		return nil, internal.WrapErrorf(nil, "unsupported response message type %T", response)
	}

	if !okField(doc) {
		return nil, commandErrorFromDocument(doc)
	}

	return doc, nil
}

func (c *connectionImpl) wrapError(inner error, message string) error {
	id := c.String()
	return &ConnectionError{
		id,
		fmt.Sprintf("connection(%s) error: %s", id, message),
		inner,
	}
}

func (c *connectionImpl) initialize(ctx context.Context, appName string, compressors []string) error {
	isMasterCmd := bson.D{
		{Key: "ismaster", Value: 1},
		{Key: "client", Value: createClientDoc(appName)},
	}
	if len(compressors) > 0 {
		isMasterCmd = append(isMasterCmd, bson.E{Key: "compression", Value: compressors})
	}

	isMasterRaw, err := c.RunCommand(ctx, "admin", isMasterCmd)
	if err != nil {
		return err
	}

	var isMasterResult isMasterResult
	err = bson.Unmarshal(isMasterRaw, &isMasterResult)
	if err != nil {
		return c.wrapError(err, "unable to decode ismaster result")
	}

	buildInfoRaw, err := c.RunCommand(ctx, "admin", bson.D{{Key: "buildInfo", Value: 1}})
	if err != nil {
		return err
	}

	var buildInfoResult buildInfoResult
	err = bson.Unmarshal(buildInfoRaw, &buildInfoResult)
	if err != nil {
		return c.wrapError(err, "unable to decode buildInfo result")
	}

	versionParts := make([]uint8, len(buildInfoResult.VersionArray))
	for i, part := range buildInfoResult.VersionArray {
		versionParts[i] = uint8(part)
	}

	desc := &Desc{
		Endpoint:   c.ep,
		GitVersion: buildInfoResult.GitVersion,
		Version: Version{
			Desc:  buildInfoResult.Version,
			Parts: versionParts,
		},
		MaxBSONObjectSize:   isMasterResult.MaxBSONObjectSize,
		MaxMessageSizeBytes: isMasterResult.MaxMessageSizeBytes,
		MaxWriteBatchSize:   isMasterResult.MaxWriteBatchSize,
		ReadOnly:            isMasterResult.ReadOnly,
		WireVersion: Range{
			Min: isMasterResult.MinWireVersion,
			Max: isMasterResult.MaxWireVersion,
		},
		Compression: isMasterResult.Compression,
	}

	var compressor compress.Compressor
	for _, name := range isMasterResult.Compression {
		if negotiated, ok := compress.ByName(name); ok {
			compressor = negotiated
			break
		}
	}

	c.mu.Lock()
	c.desc = desc
	c.compressor = compressor
	c.mu.Unlock()

	var getLastErrorResult getLastErrorResult
	getLastErrorRaw, err := c.RunCommand(ctx, "admin", bson.D{{Key: "getLastError", Value: 1}})
	// NOTE: we don't care about this result. If it fails, it doesn't
	// harm us in any way other than not being able to correlate
	// our logs with the server's logs.
	if err == nil {
		err = bson.Unmarshal(getLastErrorRaw, &getLastErrorResult)
		if err == nil && getLastErrorResult.ConnectionID != 0 {
			c.mu.Lock()
			c.id = fmt.Sprintf("%s[%d]", c.ep, getLastErrorResult.ConnectionID)
			c.logger = c.logger.WithField("connection", c.id)
			c.mu.Unlock()
		}
	}

	return nil
}

type isMasterResult struct {
	IsMaster            bool     `bson:"ismaster"`
	MaxBSONObjectSize   uint32   `bson:"maxBsonObjectSize"`
	MaxMessageSizeBytes uint32   `bson:"maxMessageSizeBytes"`
	MaxWriteBatchSize   uint32   `bson:"maxWriteBatchSize"`
	MinWireVersion      int32    `bson:"minWireVersion"`
	MaxWireVersion      int32    `bson:"maxWireVersion"`
	ReadOnly            bool     `bson:"readOnly"`
	Compression         []string `bson:"compression"`
}

type buildInfoResult struct {
	GitVersion   string  `bson:"gitVersion"`
	Version      string  `bson:"version"`
	VersionArray []int32 `bson:"versionArray"`
}

type getLastErrorResult struct {
	ConnectionID uint32 `bson:"connectionId"`
}

func createClientDoc(appName string) bson.D {
	clientDoc := bson.D{
		{Key: "driver", Value: bson.D{
			{Key: "name", Value: "MongoKitten"},
			{Key: "version", Value: internal.Version},
		}},
		{Key: "os", Value: bson.D{
			{Key: "type", Value: runtime.GOOS},
			{Key: "architecture", Value: runtime.GOARCH},
		}},
	}
	if appName != "" {
		clientDoc = append(clientDoc, bson.E{Key: "application", Value: bson.D{{Key: "name", Value: appName}}})
	}

	return clientDoc
}

func marshalCommand(cmd interface{}) ([]byte, error) {
	switch typedC := cmd.(type) {
	case bson.Raw:
		return typedC, nil
	case []byte:
		return typedC, nil
	}
	return bson.Marshal(cmd)
}

// okField reports whether the "ok" field of a reply equals 1,
// accepting the numeric encodings servers have used.
func okField(doc bson.Raw) bool {
	v, err := doc.LookupErr("ok")
	if err != nil {
		return false
	}

	switch {
	case v.Type == bson.TypeInt32:
		return v.Int32() == 1
	case v.Type == bson.TypeInt64:
		return v.Int64() == 1
	case v.Type == bson.TypeDouble:
		return v.Double() == 1
	case v.Type == bson.TypeBoolean:
		return v.Boolean()
	}
	return false
}

func commandErrorFromDocument(doc bson.Raw) error {
	commandErr := &CommandError{Message: "command failed"}

	if v, err := doc.LookupErr("errmsg"); err == nil {
		if s, ok := v.StringValueOK(); ok && s != "" {
			commandErr.Message = s
		}
	}
	if v, err := doc.LookupErr("$err"); err == nil {
		if s, ok := v.StringValueOK(); ok && s != "" {
			commandErr.Message = s
		}
	}
	if v, err := doc.LookupErr("codeName"); err == nil {
		commandErr.Name, _ = v.StringValueOK()
	}
	if v, err := doc.LookupErr("code"); err == nil {
		if code, ok := v.Int32OK(); ok {
			commandErr.Code = code
		}
	}

	return commandErr
}

// commandName returns the first element key of an encoded command.
func commandName(cmd bson.Raw) string {
	elements, err := cmd.Elements()
	if err != nil || len(elements) == 0 {
		return ""
	}
	return elements[0].Key()
}

// isUncompressible reports whether a command must travel uncompressed.
// Handshake and credential-bearing commands always do.
func isUncompressible(name string) bool {
	switch name {
	case "ismaster", "isMaster", "hello",
		"saslStart", "saslContinue", "getnonce", "authenticate",
		"createUser", "updateUser", "copydbsaslstart", "copydbgetnonce", "copydb":
		return true
	}
	return false
}
