package zxmit

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd is a zstd codec for receivers that link a zstd decoder, such as the
// receiver emulator. Payloads are independent zstd frames.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec. Encoder and decoder are stateless between
// calls and safe for concurrent use.
func NewZstd() *Zstd {
	// Options are static and valid, so construction cannot fail.
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderCRC(false),
		zstd.WithZeroFrames(true))
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	return &Zstd{enc: enc, dec: dec}
}

// Name returns "zstd".
func (*Zstd) Name() string {
	return "zstd"
}

// Compress encodes src as one zstd frame.
func (z *Zstd) Compress(src []byte) []byte {
	return z.enc.EncodeAll(src, nil)
}

// Decompress decodes a zstd frame.
func (z *Zstd) Decompress(src []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, nil)
}
