package zxmit

import (
	"encoding/binary"
	"fmt"
)

// Ack is one acknowledgment record sent by the peer.
//
// Layout on the wire:
//
//	[0]    sequence number of the frame being acknowledged
//	[1]    status, StatusOK or a peer error code
//	[2:4]  bytes acknowledged by this record, little-endian
//
// A frame may be acknowledged by several records whose lengths add up to
// the frame's wire length, header included.
type Ack struct {
	Seq    byte
	Status byte
	Length uint16
}

// OK reports whether the peer stored the acknowledged bytes.
func (a Ack) OK() bool {
	return a.Status == StatusOK
}

// Bytes encodes the record for the wire.
func (a Ack) Bytes() []byte {
	b := make([]byte, AckSize)
	b[0] = a.Seq
	b[1] = a.Status
	binary.LittleEndian.PutUint16(b[2:4], a.Length)
	return b
}

// ParseAck decodes one acknowledgment record.
func ParseAck(b []byte) (Ack, error) {
	if len(b) < AckSize {
		return Ack{}, fmt.Errorf("ack too short: %d bytes", len(b))
	}
	return Ack{
		Seq:    b[0],
		Status: b[1],
		Length: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// ackState is the state of the handshake for one frame.
type ackState int

const (
	ackAwaiting ackState = iota
	ackComplete
	ackFailed
)

func (s ackState) String() string {
	switch s {
	case ackAwaiting:
		return "awaiting"
	case ackComplete:
		return "complete"
	case ackFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// handshake accumulates acknowledgments for a single frame.
type handshake struct {
	seq   byte
	want  int
	acked int
	stale int
	state ackState
}

func newHandshake(f *Frame) *handshake {
	return &handshake{
		seq:  f.Seq,
		want: f.Len(),
	}
}

// accept applies one record. Records for another sequence number are left
// over from earlier frames and are discarded.
func (h *handshake) accept(a Ack) error {
	if h.state != ackAwaiting {
		return nil
	}
	if a.Seq != h.seq {
		h.stale++
		return nil
	}
	if !a.OK() {
		h.state = ackFailed
		return NewError(ErrPeerStatus,
			fmt.Sprintf("peer reported status %d for frame %d", a.Status, a.Seq))
	}
	h.acked += int(a.Length)
	switch {
	case h.acked == h.want:
		h.state = ackComplete
	case h.acked > h.want:
		h.state = ackFailed
		return NewError(ErrProtocol,
			fmt.Sprintf("peer acknowledged %d bytes of %d for frame %d", h.acked, h.want, a.Seq))
	}
	return nil
}

// awaitAck blocks until the peer has acknowledged every byte of f.
// It returns the number of stale records discarded on the way.
//
// Sequence numbers are a single byte, so a record is matched to a frame by
// seq alone. This relies on the peer acknowledging each frame before the
// next one is written, which the one-frame-in-flight rule guarantees; a
// record 256 frames late would be mistaken for a current one.
func awaitAck(r *ackReader, f *Frame, logger Logger) (int, error) {
	h := newHandshake(f)
	for h.state == ackAwaiting {
		a, err := r.ReadAck()
		if err != nil {
			h.state = ackFailed
			return h.stale, ioError(r.ctx, fmt.Sprintf("reading ack for frame %d", f.Seq), err)
		}
		if a.Seq != h.seq {
			logger.Info("Got out of order ack: %d instead of %d", a.Seq, h.seq)
		}
		if err := h.accept(a); err != nil {
			return h.stale, err
		}
	}
	logger.Debug("Frame %d acknowledged (%d bytes, %d stale records)", f.Seq, h.acked, h.stale)
	return h.stale, nil
}
