package compress

import (
	"io"

	"github.com/golang/snappy"

	"github.com/colemancda/MongoKitten/internal"
)

// NewSnappyCompressor creates a new compressor using the snappy block
// format.
func NewSnappyCompressor() Compressor {
	return &snappyCompressor{}
}

type snappyCompressor struct{}

func (c *snappyCompressor) ID() uint8 {
	return 1
}

func (c *snappyCompressor) Name() string {
	return "snappy"
}

func (c *snappyCompressor) Compress(in []byte, w io.Writer) error {
	_, err := w.Write(snappy.Encode(nil, in))
	return err
}

func (c *snappyCompressor) Decompress(r io.Reader, bytes []byte) error {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return internal.WrapError(err, "failed reading snappy block")
	}

	out, err := snappy.Decode(bytes, compressed)
	if err != nil {
		return internal.WrapError(err, "failed decompressing using snappy")
	}
	if len(out) != len(bytes) {
		return internal.WrapErrorf(nil, "snappy block decompressed to %d bytes, expected %d", len(out), len(bytes))
	}
	copy(bytes, out)
	return nil
}
