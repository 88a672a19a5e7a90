package conn

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// objectIDGenerator produces ObjectIDs for one connection. The counter
// occupying the trailing 3 bytes is strictly monotonic within the
// connection; the 5 random bytes are fixed at construction.
type objectIDGenerator struct {
	random  [5]byte
	counter uint32
}

func newObjectIDGenerator() *objectIDGenerator {
	g := &objectIDGenerator{}

	var seed [9]byte
	_, err := io.ReadFull(rand.Reader, seed[:])
	if err != nil {
		panic(fmt.Errorf("cannot seed objectid generator with crypto/rand.Reader: %w", err))
	}

	copy(g.random[:], seed[:5])
	g.counter = binary.BigEndian.Uint32(seed[5:])

	return g
}

// Next generates a new ObjectID.
func (g *objectIDGenerator) Next() primitive.ObjectID {
	var id primitive.ObjectID

	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], g.random[:])
	c := atomic.AddUint32(&g.counter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}
