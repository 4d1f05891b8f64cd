package zxmit

import (
	"fmt"
	"sort"
	"strings"
)

// Codec compresses chunk payloads. The receiver must be built with the same
// codec; the frame only says whether a payload is compressed, not how.
type Codec interface {
	// Name identifies the codec in configuration
	Name() string

	// Compress returns the compressed form of src
	Compress(src []byte) []byte

	// Decompress reverses Compress
	Decompress(src []byte) ([]byte, error)
}

// DefaultCodec is the codec the Spectrum receiver understands.
var DefaultCodec Codec = ZX0{Quick: true}

var codecs = map[string]func() Codec{
	"zx0":  func() Codec { return ZX0{Quick: true} },
	"zstd": func() Codec { return NewZstd() },
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	newCodec, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(CodecNames(), ", "))
	}
	return newCodec(), nil
}

// CodecNames lists the registered codec names.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compressor decides, chunk by chunk, whether the compressed form of a chunk
// is sent instead of the raw bytes.
type Compressor struct {
	codec     Codec
	chunkSize int
	enabled   bool
}

// NewCompressor creates a compressor for chunks of chunkSize bytes. A nil
// codec selects DefaultCodec.
func NewCompressor(codec Codec, chunkSize int, enabled bool) *Compressor {
	if codec == nil {
		codec = DefaultCodec
	}
	return &Compressor{
		codec:     codec,
		chunkSize: chunkSize,
		enabled:   enabled,
	}
}

// Pack returns the payload to send for chunk and whether it is compressed.
//
// Only full-size chunks are compressed: the short final chunk always goes
// out raw. The compressed form is adopted only when it is strictly shorter
// than the chunk.
func (c *Compressor) Pack(chunk []byte) ([]byte, bool) {
	if !c.enabled || len(chunk) < c.chunkSize {
		return chunk, false
	}
	packed := c.codec.Compress(chunk)
	if len(packed) < len(chunk) {
		return packed, true
	}
	return chunk, false
}

// Codec returns the codec used for compression.
func (c *Compressor) Codec() Codec {
	return c.codec
}
