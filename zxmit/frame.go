package zxmit

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed part of every frame.
//
// Layout on the wire:
//
//	[0]    sequence number, wraps at 256
//	[1:3]  payload length, little-endian
//	[3]    flags (FlagCompressed, FlagName)
type Header struct {
	Seq    byte
	Length uint16
	Flags  byte
}

// Compressed reports whether the payload is compressed.
func (h Header) Compressed() bool {
	return h.Flags&FlagCompressed != 0
}

// HasName reports whether the name field follows the header.
func (h Header) HasName() bool {
	return h.Flags&FlagName != 0
}

// putHeader stores h in b, which must be at least HeaderSize long.
func putHeader(b []byte, h Header) {
	b[0] = h.Seq
	binary.LittleEndian.PutUint16(b[1:3], h.Length)
	b[3] = h.Flags
}

// ParseHeader decodes a short header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(b))
	}
	return Header{
		Seq:    b[0],
		Length: binary.LittleEndian.Uint16(b[1:3]),
		Flags:  b[3],
	}, nil
}

// Frame is one wire unit: header, the name field on the first frame of a
// transfer, and the payload.
type Frame struct {
	Header

	// Name is the short name carried by the first frame, empty otherwise
	Name string

	// Payload holds the bytes as transmitted, compressed or raw
	Payload []byte

	// Raw is the length of the source chunk the payload was built from
	Raw int
}

// NewFrame builds a frame around payload. A non-empty name turns the frame
// into the long-header frame that opens a transfer.
func NewFrame(seq byte, payload []byte, compressed bool, name string) (*Frame, error) {
	if len(payload) > MaxPayload {
		return nil, NewError(ErrProtocol, fmt.Sprintf("payload of %d bytes exceeds %d", len(payload), MaxPayload))
	}
	if len(name) > MaxNameLen {
		return nil, NewError(ErrNameTooLong, fmt.Sprintf("name %q exceeds %d bytes", name, MaxNameLen))
	}

	var flags byte
	if compressed {
		flags |= FlagCompressed
	}
	if name != "" {
		flags |= FlagName
	}
	return &Frame{
		Header: Header{
			Seq:    seq,
			Length: uint16(len(payload)),
			Flags:  flags,
		},
		Name:    name,
		Payload: payload,
		Raw:     len(payload),
	}, nil
}

// HeaderLen returns the header size including the name field if present.
func (f *Frame) HeaderLen() int {
	if f.HasName() {
		return LongHeaderSize
	}
	return HeaderSize
}

// Len returns the frame's total wire length. The peer acknowledges exactly
// this many bytes.
func (f *Frame) Len() int {
	return f.HeaderLen() + len(f.Payload)
}

// Bytes encodes the frame for the wire.
func (f *Frame) Bytes() []byte {
	buf := make([]byte, f.Len())
	putHeader(buf, f.Header)
	if f.HasName() {
		copy(buf[HeaderSize:LongHeaderSize], NameField(f.Name, NameFieldSize))
	}
	copy(buf[f.HeaderLen():], f.Payload)
	return buf
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame seq=%d len=%d flags=%02x name=%q wire=%d",
		f.Seq, f.Length, f.Flags, f.Name, f.Len())
}
