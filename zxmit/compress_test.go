package zxmit

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCompressorPack(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := make([]byte, 64)
	rng.Read(noise)

	zeros := make([]byte, 64)

	tests := []struct {
		name           string
		enabled        bool
		chunk          []byte
		wantCompressed bool
	}{
		{"disabled", false, zeros, false},
		{"compressible", true, zeros, true},
		{"incompressible", true, noise, false},
		{"short final chunk", true, zeros[:63], false},
		{"empty", true, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCompressor(nil, 64, tc.enabled)
			payload, compressed := c.Pack(tc.chunk)
			if compressed != tc.wantCompressed {
				t.Fatalf("compressed = %v, want %v", compressed, tc.wantCompressed)
			}
			if !compressed {
				if !bytes.Equal(payload, tc.chunk) {
					t.Errorf("raw payload differs from chunk")
				}
				return
			}
			if len(payload) >= len(tc.chunk) {
				t.Errorf("adopted %d-byte payload for %d-byte chunk", len(payload), len(tc.chunk))
			}
			out, err := c.Codec().Decompress(payload)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, tc.chunk) {
				t.Errorf("decompressed payload differs from chunk")
			}
		})
	}
}

// growCodec never shrinks its input.
type growCodec struct{}

func (growCodec) Name() string                          { return "grow" }
func (growCodec) Compress(src []byte) []byte            { return append([]byte{0}, src...) }
func (growCodec) Decompress(src []byte) ([]byte, error) { return src[1:], nil }

// sameCodec returns output exactly as long as its input.
type sameCodec struct{}

func (sameCodec) Name() string                          { return "same" }
func (sameCodec) Compress(src []byte) []byte            { return bytes.Clone(src) }
func (sameCodec) Decompress(src []byte) ([]byte, error) { return src, nil }

func TestCompressorRequiresStrictGain(t *testing.T) {
	chunk := bytes.Repeat([]byte{1}, 32)
	for _, codec := range []Codec{growCodec{}, sameCodec{}} {
		c := NewCompressor(codec, 32, true)
		if _, compressed := c.Pack(chunk); compressed {
			t.Errorf("%s: compressed form adopted without gain", codec.Name())
		}
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"zx0", "ZX0", "zstd"} {
		c, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", name, err)
		}
		if c.Name() == "" {
			t.Errorf("codec %q has no name", name)
		}
	}
	if _, err := CodecByName("lz4"); err == nil {
		t.Error("expected error for unknown codec")
	}

	names := CodecNames()
	if len(names) != 2 || names[0] != "zstd" || names[1] != "zx0" {
		t.Errorf("CodecNames() = %v", names)
	}
}

func TestZstdRoundTrip(t *testing.T) {
	z := NewZstd()
	in := bytes.Repeat([]byte("PAPER 0: INK 7: BORDER 0\n"), 40)

	packed := z.Compress(in)
	if len(packed) >= len(in) {
		t.Errorf("zstd did not shrink %d bytes: got %d", len(in), len(packed))
	}
	out, err := z.Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip mismatch")
	}

	if _, err := z.Decompress([]byte{1, 2, 3, 4}); err == nil {
		t.Error("expected error for garbage input")
	}
}
