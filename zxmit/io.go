package zxmit

import (
	"context"
	"io"
	"time"
)

// ReaderWithTimeout is an io.Reader that supports read deadlines.
// net.Conn satisfies it.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// ackReader reads fixed-size acknowledgment records from the peer, arming a
// read deadline before each record when the underlying reader supports it.
type ackReader struct {
	reader  io.Reader
	timeout time.Duration
	ctx     context.Context
	buf     [AckSize]byte
}

// newAckReader creates an acknowledgment reader. A zero timeout waits
// forever.
func newAckReader(ctx context.Context, reader io.Reader, timeout time.Duration) *ackReader {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ackReader{
		reader:  reader,
		timeout: timeout,
		ctx:     ctx,
	}
}

// ReadAck blocks until one complete record has arrived.
func (r *ackReader) ReadAck() (Ack, error) {
	if rt, ok := r.reader.(ReaderWithTimeout); ok && r.timeout > 0 {
		if err := rt.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return Ack{}, err
		}
	}

	// checked after arming the deadline so a concurrent cancel that resets
	// it to now is never overwritten
	select {
	case <-r.ctx.Done():
		return Ack{}, r.ctx.Err()
	default:
	}

	if _, err := io.ReadFull(r.reader, r.buf[:]); err != nil {
		return Ack{}, err
	}
	return ParseAck(r.buf[:])
}
