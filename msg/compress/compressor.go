package compress

import "io"

// Compressor handles compressing and decompressing bytes.
type Compressor interface {
	// ID is the wire identifier of the compressor.
	ID() uint8
	// Name is the name of the compressor as negotiated during the
	// connection handshake.
	Name() string
	// Compress compresses the bytes and writes them to the writer.
	Compress([]byte, io.Writer) error
	// Decompress decompresses the reader into the bytes, which must
	// have the uncompressed length.
	Decompress(io.Reader, []byte) error
}

// ByName returns the compressor with the given negotiated name.
func ByName(name string) (Compressor, bool) {
	switch name {
	case "snappy":
		return NewSnappyCompressor(), true
	case "zlib":
		return NewZLibCompressor(), true
	case "zstd":
		return NewZstdCompressor(), true
	}
	return nil, false
}
