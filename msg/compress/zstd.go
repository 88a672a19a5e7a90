package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/colemancda/MongoKitten/internal"
)

// NewZstdCompressor creates a new compressor using the zstd format.
func NewZstdCompressor() Compressor {
	return &zstdCompressor{}
}

type zstdCompressor struct{}

func (c *zstdCompressor) ID() uint8 {
	return 3
}

func (c *zstdCompressor) Name() string {
	return "zstd"
}

func (c *zstdCompressor) Compress(in []byte, w io.Writer) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return internal.WrapError(err, "failed creating zstd writer")
	}

	if _, err := encoder.Write(in); err != nil {
		encoder.Close()
		return internal.WrapError(err, "failed compressing using zstd")
	}
	return encoder.Close()
}

func (c *zstdCompressor) Decompress(r io.Reader, bytes []byte) error {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return internal.WrapError(err, "failed creating zstd reader")
	}
	defer decoder.Close()

	if _, err := io.ReadFull(decoder, bytes); err != nil {
		return internal.WrapError(err, "failed decompressing using zstd")
	}
	return nil
}
