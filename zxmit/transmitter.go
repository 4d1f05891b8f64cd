package zxmit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"
)

// errStopped reports that the consumer stopped ranging over the progress
// sequence. It never reaches callers.
var errStopped = errors.New("zxmit: consumer stopped")

// ioError classifies a failed network operation. Failures caused by the
// transfer context ending are reported as cancellations.
func ioError(ctx context.Context, message string, err error) *Error {
	if ctx != nil && ctx.Err() != nil {
		return WrapError(ErrCancelled, message, ctx.Err())
	}
	return WrapError(ErrConnection, message, err)
}

// transfer runs one upload from name encoding to the last acknowledgment.
func (s *Session) transfer(ctx context.Context, u Upload, yield func(Progress, error) bool) error {
	short, err := ShortName(filepath.Base(u.Name), u.Mode.nameWidth())
	if err != nil {
		return err
	}
	s.logger.Info("Short filename will be %s", short)

	conn, err := s.connect(ctx, u)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	t := s.newTransmitter(ctx, conn, u.Compress)
	if u.Mode == ModeLegacy {
		return t.sendLegacy(ctx, u.Data, short, yield)
	}
	return t.run(ctx, u.Data, short, yield)
}

// connect dials the receiver, or returns a nil connection for dummy runs.
func (s *Session) connect(ctx context.Context, u Upload) (net.Conn, error) {
	if u.Dummy {
		s.logger.Info("Dummy run, no connection will be made")
		return nil, nil
	}
	if u.Address == "" {
		return nil, NewError(ErrConnection, "no receiver address given")
	}

	addr := JoinAddress(u.Address, s.config.Port)
	s.logger.Info("Establishing connection to %s", addr)
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ioError(ctx, "connect to "+addr, err)
	}
	s.callbacks.emit(EventConnected, -1, addr)
	return withDeadlines(conn), nil
}

// transmitter owns the connection for the duration of one transfer.
type transmitter struct {
	conn       net.Conn
	writer     io.Writer
	acks       *ackReader
	compressor *Compressor
	chunkSize  int
	queueDepth int
	timeout    time.Duration
	logger     Logger
	callbacks  *Callbacks
}

func (s *Session) newTransmitter(ctx context.Context, conn net.Conn, compress bool) *transmitter {
	t := &transmitter{
		conn:       conn,
		compressor: NewCompressor(s.config.Codec, s.config.ChunkSize, compress),
		chunkSize:  s.config.ChunkSize,
		queueDepth: s.config.QueueDepth,
		timeout:    s.config.Timeout,
		logger:     s.logger,
		callbacks:  s.callbacks,
	}
	if conn == nil {
		return t
	}

	var reader io.Reader = conn
	t.writer = conn
	if s.config.TraceIO {
		reader = NewLoggingReader(conn, s.logger, "ack")
		t.writer = NewLoggingWriter(conn, s.logger, "frame")
	}
	t.acks = newAckReader(ctx, reader, s.config.Timeout)
	return t
}

// blockCount returns the number of chunks size bytes split into.
func blockCount(size, chunkSize int) int {
	return (size + chunkSize - 1) / chunkSize
}

// produce walks data chunk by chunk, compresses and frames each chunk, and
// queues the frames in order. The channel's capacity bounds how far
// compression runs ahead of the network. The frame channel is closed when
// the producer is done; a failure is reported on the error channel first.
func (t *transmitter) produce(ctx context.Context, wg *sync.WaitGroup, data []byte, name string) (<-chan *Frame, <-chan error) {
	frames := make(chan *Frame, t.queueDepth)
	errc := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(frames)

		var seq byte
		for off := 0; off < len(data); off += t.chunkSize {
			chunk := data[off:min(off+t.chunkSize, len(data))]
			payload, compressed := t.compressor.Pack(chunk)

			f, err := NewFrame(seq, payload, compressed, name)
			if err != nil {
				errc <- err
				return
			}
			f.Raw = len(chunk)

			// only the first frame carries the name
			name = ""
			seq++

			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errc
}

// run drives a chunked transfer. The calling goroutine is the consumer: it
// writes each frame and waits for its acknowledgment while the producer
// prepares the next ones.
func (t *transmitter) run(ctx context.Context, data []byte, name string, yield func(Progress, error) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if t.conn != nil {
		// unblock a pending write or read as soon as the context ends
		stop := context.AfterFunc(ctx, t.interrupt)
		defer stop()
	}

	blocks := blockCount(len(data), t.chunkSize)
	total := int64(len(data))
	t.logger.Info("Sending %d bytes in %d blocks", total, blocks)

	frames, errc := t.produce(ctx, &wg, data, name)

	var sent int64
	block := 0
	for f := range frames {
		if ctx.Err() != nil {
			break
		}
		if err := t.send(ctx, f); err != nil {
			return err
		}
		block++
		sent += int64(f.Len())

		p := Progress{
			Block:      block,
			Blocks:     blocks,
			Sent:       sent,
			Total:      total,
			Seq:        f.Seq,
			Compressed: f.Compressed(),
		}
		if !yield(p, nil) {
			return errStopped
		}
	}

	select {
	case err := <-errc:
		return err
	default:
	}
	if err := ctx.Err(); err != nil {
		return WrapError(ErrCancelled, fmt.Sprintf("stopped after %d of %d blocks", block, blocks), err)
	}
	return nil
}

// interrupt unblocks a pending write or read. A connection that refuses
// the deadline is closed instead.
func (t *transmitter) interrupt() {
	if err := t.conn.SetDeadline(time.Now()); err != nil {
		t.logger.Debug("set deadline: %v, closing connection", err)
		t.conn.Close()
	}
}

// send writes one frame and waits until the peer has acknowledged all of
// it. In dummy mode the frame is considered acknowledged at once.
func (t *transmitter) send(ctx context.Context, f *Frame) error {
	if t.conn == nil {
		t.logger.Debug("%s", FormatFrameLog("dummy", f))
		return nil
	}

	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return ioError(ctx, "set write deadline", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return WrapError(ErrCancelled, fmt.Sprintf("before frame %d", f.Seq), err)
	}
	if _, err := t.writer.Write(f.Bytes()); err != nil {
		return ioError(ctx, fmt.Sprintf("write frame %d", f.Seq), err)
	}
	t.logger.Debug("%s", FormatFrameLog("sent", f))
	t.callbacks.emit(EventFrameSent, int(f.Seq), f.String())

	stale, err := awaitAck(t.acks, f, t.logger)
	if stale > 0 {
		t.callbacks.emit(EventStaleAck, int(f.Seq), fmt.Sprintf("%d stale records", stale))
	}
	if err != nil {
		return err
	}
	t.callbacks.emit(EventFrameAcked, int(f.Seq), "")
	return nil
}

// sendLegacy writes a 32-byte name buffer followed by the whole file in one
// write. The legacy receiver sends no acknowledgments.
func (t *transmitter) sendLegacy(ctx context.Context, data []byte, name string, yield func(Progress, error) bool) error {
	buf := make([]byte, 0, LegacyNameLen+len(data))
	buf = append(buf, NameField(name, LegacyNameLen)...)
	buf = append(buf, data...)

	if t.conn != nil {
		if t.timeout > 0 {
			if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
				return ioError(ctx, "set write deadline", err)
			}
		}
		stop := context.AfterFunc(ctx, t.interrupt)
		defer stop()
		if _, err := t.writer.Write(buf); err != nil {
			return ioError(ctx, "write file", err)
		}
	}
	t.logger.Info("Sent %d bytes in legacy mode", len(buf))

	p := Progress{
		Block:  1,
		Blocks: 1,
		Sent:   int64(len(buf)),
		Total:  int64(len(data)),
	}
	if !yield(p, nil) {
		return errStopped
	}
	return nil
}
