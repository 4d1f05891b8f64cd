package zxmit

import "errors"

// ZX0 parameters. The encoder produces the forward, non-classic format that
// the Spectrum-side dzx0 routine expects.
const (
	zx0InitialOffset = 1

	// zx0MaxOffset is the largest offset of the full optimizer
	zx0MaxOffset = 32640

	// zx0QuickMaxOffset is the offset limit in quick mode
	zx0QuickMaxOffset = 2176

	// zx0EndMarker is the offset MSB value that terminates a stream
	zx0EndMarker = 256
)

var errZX0Corrupt = errors.New("zx0: corrupt stream")

// ZX0 is the ZX0 codec. Quick limits the match window, which makes no
// difference for payloads shorter than the window and is how the original
// sender has always compressed.
type ZX0 struct {
	Quick bool
}

// Name returns "zx0".
func (ZX0) Name() string {
	return "zx0"
}

// Compress returns the ZX0 encoding of src. An empty input yields an empty
// output.
func (z ZX0) Compress(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	limit := zx0MaxOffset
	if z.Quick {
		limit = zx0QuickMaxOffset
	}
	return zx0Encode(src, zx0Optimize(src, limit))
}

// Decompress decodes a ZX0 stream.
func (ZX0) Decompress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	r := &zx0Reader{in: src}
	return r.decode()
}

// zx0Block is one step of a parse. offset 0 means a run of literals; the
// chain points to the step that precedes it.
type zx0Block struct {
	bits   int
	index  int
	offset int
	chain  *zx0Block
}

func eliasGammaBits(value int) int {
	bits := 1
	for value >>= 1; value > 0; value >>= 1 {
		bits += 2
	}
	return bits
}

func offsetCeiling(index, limit int) int {
	if index > limit {
		return limit
	}
	if index < zx0InitialOffset {
		return zx0InitialOffset
	}
	return index
}

// zx0Optimize finds the cheapest parse of input in bits. It tracks, per
// offset, the best parse ending in a literal run and the best ending in a
// match, which is what makes "repeat last offset" matches priced correctly.
func zx0Optimize(input []byte, offsetLimit int) *zx0Block {
	n := len(input)
	lastLiteral := make([]*zx0Block, offsetLimit+1)
	lastMatch := make([]*zx0Block, offsetLimit+1)
	optimal := make([]*zx0Block, n)
	matchLength := make([]int, offsetLimit+1)
	bestLength := make([]int, n)
	if n > 2 {
		bestLength[2] = 2
	}

	// fake starting block; its bits compensate for the first literal
	// indicator which is never written
	lastMatch[zx0InitialOffset] = &zx0Block{bits: -1, index: -1, offset: zx0InitialOffset}

	for index := 0; index < n; index++ {
		bestLengthSize := 2
		maxOffset := offsetCeiling(index, offsetLimit)
		for offset := 1; offset <= maxOffset; offset++ {
			if index != 0 && index >= offset && input[index] == input[index-offset] {
				// copy from last offset
				if lit := lastLiteral[offset]; lit != nil {
					length := index - lit.index
					bits := lit.bits + 1 + eliasGammaBits(length)
					lastMatch[offset] = &zx0Block{bits: bits, index: index, offset: offset, chain: lit}
					if optimal[index] == nil || optimal[index].bits > bits {
						optimal[index] = lastMatch[offset]
					}
				}

				// copy from new offset
				matchLength[offset]++
				if matchLength[offset] > 1 {
					if bestLengthSize < matchLength[offset] {
						bits := optimal[index-bestLength[bestLengthSize]].bits + eliasGammaBits(bestLength[bestLengthSize]-1)
						for bestLengthSize < matchLength[offset] {
							bestLengthSize++
							bits2 := optimal[index-bestLengthSize].bits + eliasGammaBits(bestLengthSize-1)
							if bits2 <= bits {
								bestLength[bestLengthSize] = bestLengthSize
								bits = bits2
							} else {
								bestLength[bestLengthSize] = bestLength[bestLengthSize-1]
							}
						}
					}
					length := bestLength[matchLength[offset]]
					bits := optimal[index-length].bits + 8 + eliasGammaBits((offset-1)/128+1) + eliasGammaBits(length-1)
					if m := lastMatch[offset]; m == nil || m.index != index || m.bits > bits {
						lastMatch[offset] = &zx0Block{bits: bits, index: index, offset: offset, chain: optimal[index-length]}
						if optimal[index] == nil || optimal[index].bits > bits {
							optimal[index] = lastMatch[offset]
						}
					}
				}
			} else {
				// copy literals
				matchLength[offset] = 0
				if m := lastMatch[offset]; m != nil {
					length := index - m.index
					bits := m.bits + 1 + eliasGammaBits(length) + length*8
					lastLiteral[offset] = &zx0Block{bits: bits, index: index, offset: 0, chain: m}
					if optimal[index] == nil || optimal[index].bits > bits {
						optimal[index] = lastLiteral[offset]
					}
				}
			}
		}
	}
	return optimal[n-1]
}

// zx0Writer packs bits MSB first into bytes interleaved with literal bytes.
type zx0Writer struct {
	out       []byte
	bitMask   byte
	bitIndex  int
	backtrack bool
}

func (w *zx0Writer) writeByte(b byte) {
	w.out = append(w.out, b)
}

func (w *zx0Writer) writeBit(v bool) {
	if w.backtrack {
		// the bit lands in the LSB of the byte just written
		if v && len(w.out) > 0 {
			w.out[len(w.out)-1] |= 1
		}
		w.backtrack = false
		return
	}
	if w.bitMask == 0 {
		w.bitMask = 128
		w.bitIndex = len(w.out)
		w.writeByte(0)
	}
	if v {
		w.out[w.bitIndex] |= w.bitMask
	}
	w.bitMask >>= 1
}

func (w *zx0Writer) writeEliasGamma(value int, invert bool) {
	i := 2
	for i <= value {
		i <<= 1
	}
	i >>= 1
	for i >>= 1; i > 0; i >>= 1 {
		w.writeBit(false)
		bit := value&i != 0
		if invert {
			bit = !bit
		}
		w.writeBit(bit)
	}
	w.writeBit(true)
}

func zx0Encode(input []byte, optimal *zx0Block) []byte {
	var steps []*zx0Block
	for b := optimal; b != nil; b = b.chain {
		steps = append(steps, b)
	}

	w := &zx0Writer{
		out:       make([]byte, 0, len(input)),
		backtrack: true,
	}
	lastOffset := zx0InitialOffset
	pos := 0

	// steps[len-1] is the fake starting block
	for k := len(steps) - 2; k >= 0; k-- {
		b, prev := steps[k], steps[k+1]
		length := b.index - prev.index

		switch {
		case b.offset == 0:
			w.writeBit(false)
			w.writeEliasGamma(length, false)
			w.out = append(w.out, input[pos:pos+length]...)
		case b.offset == lastOffset && prev.offset == 0:
			w.writeBit(false)
			w.writeEliasGamma(length, false)
		default:
			w.writeBit(true)
			w.writeEliasGamma((b.offset-1)/128+1, true)
			w.writeByte(byte((127 - (b.offset-1)%128) << 1))
			w.backtrack = true
			w.writeEliasGamma(length-1, false)
			lastOffset = b.offset
		}
		pos += length
	}

	w.writeBit(true)
	w.writeEliasGamma(zx0EndMarker, true)
	return w.out
}

type zx0Reader struct {
	in        []byte
	pos       int
	bitMask   byte
	bitValue  byte
	lastByte  byte
	backtrack bool
	out       []byte
}

func (r *zx0Reader) readByte() (byte, error) {
	if r.pos >= len(r.in) {
		return 0, errZX0Corrupt
	}
	b := r.in[r.pos]
	r.pos++
	r.lastByte = b
	return b, nil
}

func (r *zx0Reader) readBit() (bool, error) {
	if r.backtrack {
		r.backtrack = false
		return r.lastByte&1 != 0, nil
	}
	r.bitMask >>= 1
	if r.bitMask == 0 {
		r.bitMask = 128
		b, err := r.readByte()
		if err != nil {
			return false, err
		}
		r.bitValue = b
	}
	return r.bitValue&r.bitMask != 0, nil
}

func (r *zx0Reader) readEliasGamma(invert bool) (int, error) {
	value := 1
	for {
		stop, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if stop {
			return value, nil
		}
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		value <<= 1
		if bit != invert {
			value |= 1
		}
		if value > 1<<20 {
			return 0, errZX0Corrupt
		}
	}
}

func (r *zx0Reader) copyMatch(offset, length int) error {
	if offset <= 0 || offset > len(r.out) {
		return errZX0Corrupt
	}
	start := len(r.out) - offset
	for i := 0; i < length; i++ {
		r.out = append(r.out, r.out[start+i])
	}
	return nil
}

func (r *zx0Reader) decode() ([]byte, error) {
	lastOffset := zx0InitialOffset
	for {
		// literals
		length, err := r.readEliasGamma(false)
		if err != nil {
			return nil, err
		}
		for i := 0; i < length; i++ {
			b, err := r.readByte()
			if err != nil {
				return nil, err
			}
			r.out = append(r.out, b)
		}
		newOffset, err := r.readBit()
		if err != nil {
			return nil, err
		}

		if !newOffset {
			// copy from last offset
			length, err := r.readEliasGamma(false)
			if err != nil {
				return nil, err
			}
			if err := r.copyMatch(lastOffset, length); err != nil {
				return nil, err
			}
			newOffset, err = r.readBit()
			if err != nil {
				return nil, err
			}
			if !newOffset {
				continue
			}
		}

		// copy from new offset, possibly several in a row
		for newOffset {
			msb, err := r.readEliasGamma(true)
			if err != nil {
				return nil, err
			}
			if msb == zx0EndMarker {
				return r.out, nil
			}
			if msb > zx0EndMarker {
				return nil, errZX0Corrupt
			}
			lsb, err := r.readByte()
			if err != nil {
				return nil, err
			}
			lastOffset = msb*128 - int(lsb>>1)
			r.backtrack = true
			length, err := r.readEliasGamma(false)
			if err != nil {
				return nil, err
			}
			if err := r.copyMatch(lastOffset, length+1); err != nil {
				return nil, err
			}
			newOffset, err = r.readBit()
			if err != nil {
				return nil, err
			}
		}
	}
}
