// Package zxmit implements the sending side of the zxmit file transfer
// protocol.
//
// zxmit moves a single file from a host to a ZX Spectrum (or any other small
// machine running the matching receiver) over one TCP connection. The file is
// cut into fixed-size chunks, each chunk is optionally compressed with ZX0,
// wrapped in a small frame and written to the peer. The peer acknowledges
// every frame before the next one is sent.
//
// The package is designed as a library: a Session turns a source buffer and a
// destination address into a lazy sequence of progress events, and callers
// drive their own UI from those events.
package zxmit

// DefaultPort is the TCP port the receiver listens on.
const DefaultPort = 6144

// DefaultChunkSize is the nominal payload size of one frame before
// compression. Only the final chunk of a file may be shorter.
const DefaultChunkSize = 1024

// MaxPayload is the largest payload a frame header can describe.
const MaxPayload = 0xFFFF

// Frame header layout
const (
	// HeaderSize is the size of the short header: seq, length (LE), flags
	HeaderSize = 4

	// LongHeaderSize is the size of the first frame's header including the
	// name field
	LongHeaderSize = 17

	// NameFieldSize is the width of the zero-padded name field that follows
	// the short header in a long header
	NameFieldSize = LongHeaderSize - HeaderSize
)

// Frame flag bits
const (
	// FlagCompressed marks a payload that must be decompressed by the peer
	FlagCompressed = 0x01

	// FlagName marks the frame that carries the name field
	FlagName = 0x02
)

// Short name limits
const (
	// MaxStem is the maximum number of characters kept from the stem
	MaxStem = 8

	// MaxExt is the maximum number of characters kept from the extension
	MaxExt = 3

	// MaxNameLen is the longest short name the chunked protocol carries
	MaxNameLen = 12

	// LegacyNameLen is the width of the name buffer in legacy mode
	LegacyNameLen = 32
)

// AckSize is the size of one acknowledgment record.
const AckSize = 4

// Acknowledgment status codes
const (
	// StatusOK is reported by the peer for bytes stored successfully
	StatusOK = 0
)

// DefaultQueueDepth bounds how many frames the producer may prepare ahead
// of the network writer.
const DefaultQueueDepth = 16

// Mode selects the wire protocol variant.
type Mode int

const (
	// ModeChunked is the framed, acknowledged protocol
	ModeChunked Mode = iota

	// ModeLegacy sends a 32-byte name buffer followed by the whole file in a
	// single unacknowledged write
	ModeLegacy
)

func (m Mode) String() string {
	switch m {
	case ModeChunked:
		return "chunked"
	case ModeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// nameWidth returns the maximum short name length for a mode.
func (m Mode) nameWidth() int {
	if m == ModeLegacy {
		return LegacyNameLen
	}
	return MaxNameLen
}
